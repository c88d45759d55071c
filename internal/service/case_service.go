package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/logger"
	"github.com/pesio-ai/be-exp-cases/internal/metrics"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// CaseService handles case lifecycle operations around the transition
// engine: creation, reads, and checklist completion marking.
type CaseService struct {
	registry *stage.Registry
	store    Store
	notifier Notifier
	log      *logger.Logger
}

// NewCaseService creates a new CaseService. notifier may be nil.
func NewCaseService(registry *stage.Registry, store Store, notifier Notifier, log *logger.Logger) *CaseService {
	return &CaseService{
		registry: registry,
		store:    store,
		notifier: notifier,
		log:      log,
	}
}

// CreateCaseRequest carries a case creation request.
type CreateCaseRequest struct {
	FileNumber       string
	DepartmentID     string
	SupervisorUserID *string
	PropertyAddress  *string
	Description      *string
}

// CreateCase opens a new case in the first main stage, creating the initial
// stage assignment and the initial progression (nil from-stage) atomically,
// then runs best-effort auto-assignment for the first stage.
func (s *CaseService) CreateCase(ctx context.Context, actor auth.Actor, req CreateCaseRequest) (*TransitionResult, error) {
	if req.FileNumber == "" {
		return nil, errors.InvalidInput("file_number", "file number is required")
	}
	if req.DepartmentID == "" {
		return nil, errors.InvalidInput("department_id", "department is required")
	}

	first := s.registry.First()
	now := nowFunc()

	c := &repository.Case{
		FileNumber:         req.FileNumber,
		CurrentStage:       first.ID,
		Status:             repository.StatusPending,
		ProgressPercentage: 0,
		SupervisorUserID:   req.SupervisorUserID,
		DepartmentID:       req.DepartmentID,
		PropertyAddress:    req.PropertyAddress,
		Description:        req.Description,
		CreatedBy:          optional(actor.UserID),
	}

	a := &repository.StageAssignment{
		Stage:      first.ID,
		AssignedAt: now,
	}
	if first.EstimatedDurationDays > 0 {
		due := now.AddDate(0, 0, first.EstimatedDurationDays)
		a.DueAt = &due
	}

	p := &repository.StageProgression{
		ToStage:      first.ID,
		Type:         stage.Forward,
		Reason:       "case opened",
		ApprovedBy:   actor.UserID,
		RequestIP:    optional(actor.IP),
		RequestAgent: optional(actor.UserAgent),
	}

	newStage := string(first.ID)
	h := &repository.CaseHistory{
		Field:       "current_stage",
		NewValue:    &newStage,
		PerformedBy: actor.UserID,
	}

	if err := s.store.CreateCase(ctx, c, a, p, h); err != nil {
		return nil, err
	}
	metrics.CasesCreatedTotal.Inc()

	result := &TransitionResult{Case: c, Assignment: a, Progression: p}
	autoAssign(ctx, s.registry, s.store, s.log, result)

	if s.notifier != nil {
		s.notifier.PublishCaseEvent(ctx, EventCaseCreated, &CaseEvent{
			CaseID:         c.ID,
			FileNumber:     c.FileNumber,
			ToStage:        first.ID,
			Type:           stage.Forward,
			AssignedUserID: c.AssignedUserID,
			ProgressionID:  p.ID,
			ActorID:        actor.UserID,
		})
	}

	s.log.Info().
		Str("case_id", c.ID).
		Str("file_number", c.FileNumber).
		Str("stage", string(first.ID)).
		Msg("Case created")

	return result, nil
}

// DeleteCase soft-deletes a case, keeping its audit trail. Restricted to
// admins and the case department's admin; assignees may not delete their
// own cases.
func (s *CaseService) DeleteCase(ctx context.Context, actor auth.Actor, caseID string) error {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}

	allowed := actor.Role == auth.RoleAdmin ||
		(actor.Role == auth.RoleDepartmentAdmin && actor.DepartmentID != "" && actor.DepartmentID == c.DepartmentID)
	if !allowed {
		return errors.PermissionDenied("actor may not delete this case")
	}

	if err := s.store.SoftDeleteCase(ctx, caseID); err != nil {
		return err
	}

	s.log.Info().
		Str("case_id", caseID).
		Str("file_number", c.FileNumber).
		Str("actor_id", actor.UserID).
		Msg("Case deleted")
	return nil
}

// GetCase returns a case with its active assignment.
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*repository.Case, *repository.StageAssignment, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.store.ActiveAssignment(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return c, a, nil
}

// GetCaseByFileNumber resolves a case by its human-readable file number and
// returns it with its active assignment.
func (s *CaseService) GetCaseByFileNumber(ctx context.Context, fileNumber string) (*repository.Case, *repository.StageAssignment, error) {
	c, err := s.store.GetCaseByFileNumber(ctx, fileNumber)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.store.ActiveAssignment(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, a, nil
}

// ListCases lists cases with optional department/status filters.
func (s *CaseService) ListCases(ctx context.Context, departmentID, status *string, limit, offset int) ([]*repository.Case, error) {
	return s.store.ListCases(ctx, departmentID, status, limit, offset)
}

// ChecklistItemStatus pairs one template item of the case's current stage
// with its completion state on the active assignment.
type ChecklistItemStatus struct {
	Item        stage.ChecklistItem `json:"item"`
	Completed   bool                `json:"completed"`
	CompletedBy *string             `json:"completed_by,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// ChecklistStatus returns the checklist of the case's current stage with
// per-item completion state.
func (s *CaseService) ChecklistStatus(ctx context.Context, caseID string) ([]ChecklistItemStatus, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	st, err := s.registry.Lookup(c.CurrentStage)
	if err != nil {
		return nil, err
	}

	active, err := s.store.ActiveAssignment(ctx, caseID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListChecklist(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]*repository.ChecklistCompletion, len(records))
	for _, r := range records {
		byItem[r.ItemID] = r
	}

	statuses := make([]ChecklistItemStatus, 0, len(st.Checklist))
	for _, item := range st.Checklist {
		status := ChecklistItemStatus{Item: item}
		if r, ok := byItem[item.ID]; ok && r.Completed {
			status.Completed = true
			status.CompletedBy = r.CompletedBy
			status.CompletedAt = r.CompletedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// MarkChecklistItem sets the completion state of one checklist item on the
// case's active assignment. The item must belong to the current stage's
// template, and the actor must be allowed to act on the case.
func (s *CaseService) MarkChecklistItem(
	ctx context.Context,
	actor auth.Actor,
	caseID, itemID string,
	completed bool,
) (*repository.ChecklistCompletion, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !auth.CanTransition(actor, caseRef(c)) {
		return nil, errors.PermissionDenied("actor may not act on this case")
	}

	st, err := s.registry.Lookup(c.CurrentStage)
	if err != nil {
		return nil, err
	}
	if !hasItem(st, itemID) {
		return nil, errors.NotFound("checklist item", itemID)
	}

	active, err := s.store.ActiveAssignment(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.store.MarkChecklistItem(ctx, active.ID, itemID, completed, actor.UserID)
}

// ListAssignments returns the case's assignment trail, oldest first.
func (s *CaseService) ListAssignments(ctx context.Context, caseID string) ([]*repository.StageAssignment, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, caseID)
}

// ListProgressions returns the case's immutable progression trail.
func (s *CaseService) ListProgressions(ctx context.Context, caseID string) ([]*repository.StageProgression, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.ListProgressions(ctx, caseID)
}

// ListHistory returns the case's audit history.
func (s *CaseService) ListHistory(ctx context.Context, caseID string) ([]*repository.CaseHistory, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, caseID)
}

func hasItem(st *stage.Stage, itemID string) bool {
	for _, item := range st.Checklist {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
