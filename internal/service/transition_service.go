package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/logger"
	"github.com/pesio-ai/be-exp-cases/internal/metrics"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// Notification event types.
const (
	EventCaseCreated      = "case_created"
	EventCaseStageChanged = "case_stage_changed"
)

// TransitionService orchestrates stage transitions: permission check,
// stage-graph validation, checklist gate, atomic apply, audit recording,
// best-effort auto-assignment and the notification trigger.
type TransitionService struct {
	registry *stage.Registry
	store    Store
	notifier Notifier
	log      *logger.Logger
}

// NewTransitionService creates a new TransitionService. notifier may be nil
// when notification publishing is disabled.
func NewTransitionService(registry *stage.Registry, store Store, notifier Notifier, log *logger.Logger) *TransitionService {
	return &TransitionService{
		registry: registry,
		store:    store,
		notifier: notifier,
		log:      log,
	}
}

// TransitionRequest carries one transition attempt.
type TransitionRequest struct {
	CaseID       string
	TargetStage  stage.ID
	Reason       string
	Observations *string
}

// TransitionResult is returned to the caller on success, for response
// rendering and notification fan-out.
type TransitionResult struct {
	Case        *repository.Case
	Assignment  *repository.StageAssignment
	Progression *repository.StageProgression
	Warnings    []string
}

// MissingItem describes one required checklist item blocking a forward
// transition.
type MissingItem struct {
	ItemID string `json:"item_id"`
	Label  string `json:"label"`
}

// RequestTransition runs the end-to-end transition operation. All
// rejections before the atomic apply are side-effect-free.
func (s *TransitionService) RequestTransition(
	ctx context.Context,
	actor auth.Actor,
	req TransitionRequest,
) (*TransitionResult, error) {
	result, err := s.requestTransition(ctx, actor, req)
	s.observe(req, result, err)
	return result, err
}

func (s *TransitionService) requestTransition(
	ctx context.Context,
	actor auth.Actor,
	req TransitionRequest,
) (*TransitionResult, error) {
	c, err := s.store.GetCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	// Step 1: permission, evaluated before the stage-graph check.
	if !auth.CanTransition(actor, caseRef(c)) {
		return nil, errors.PermissionDenied("actor may not transition this case")
	}

	// Step 2: classify against the stage read at request entry. The result
	// is advisory; the authoritative check repeats inside the transaction.
	ptype, err := s.registry.Classify(c.CurrentStage, req.TargetStage)
	if err != nil {
		return nil, err
	}

	if ptype == stage.Backward && req.Reason == "" {
		return nil, errors.InvalidInput("reason", "a return reason is required")
	}

	// Step 3: checklist gate pre-check, forward moves out of ordinary
	// stages only. Side-effect-free fail-fast; repeated under the lock.
	if s.gateApplies(ptype, c.CurrentStage) {
		active, err := s.store.ActiveAssignment(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		done, err := s.store.CompletedItemIDs(ctx, active.ID)
		if err != nil {
			return nil, err
		}
		if missing := s.missingItems(c.CurrentStage, done); len(missing) > 0 {
			return nil, checklistIncomplete(missing)
		}
	}

	// Steps 4–7: atomic apply under the case row lock.
	result := &TransitionResult{}
	err = s.store.RunTransition(ctx, c.ID, func(tx repository.TransitionTx) error {
		return s.applyTransition(tx, actor, req, c.CurrentStage, result)
	})
	if err != nil {
		return nil, err
	}

	// Step 6 (post-commit): best-effort auto-assignment.
	autoAssign(ctx, s.registry, s.store, s.log, result)

	// Step 8: notification trigger, fire-and-forget.
	if s.notifier != nil {
		s.notifier.PublishCaseEvent(ctx, EventCaseStageChanged, &CaseEvent{
			CaseID:         result.Case.ID,
			FileNumber:     result.Case.FileNumber,
			FromStage:      result.Progression.FromStage,
			ToStage:        result.Progression.ToStage,
			Type:           result.Progression.Type,
			AssignedUserID: result.Case.AssignedUserID,
			ProgressionID:  result.Progression.ID,
			ActorID:        actor.UserID,
		})
	}

	s.log.Info().
		Str("case_id", result.Case.ID).
		Str("file_number", result.Case.FileNumber).
		Str("to_stage", string(result.Progression.ToStage)).
		Str("progression_type", string(result.Progression.Type)).
		Str("actor_id", actor.UserID).
		Msg("Stage transition applied")

	return result, nil
}

// applyTransition is the critical path, executed under the case row lock.
// entryStage is the stage observed at request entry; a mismatch with the
// locked row means another transition won the race.
func (s *TransitionService) applyTransition(
	tx repository.TransitionTx,
	actor auth.Actor,
	req TransitionRequest,
	entryStage stage.ID,
	result *TransitionResult,
) error {
	c := tx.Case()
	if c.CurrentStage != entryStage {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("case stage changed concurrently (now %s)", c.CurrentStage))
	}

	// Re-validate against the freshly-read stage, not the request-entry value.
	ptype, err := s.registry.Classify(c.CurrentStage, req.TargetStage)
	if err != nil {
		return err
	}

	prior, err := tx.ActiveAssignment()
	if err != nil {
		return err
	}

	// Authoritative checklist gate, now under the lock.
	if s.gateApplies(ptype, c.CurrentStage) {
		done, err := tx.CompletedItemIDs(prior.ID)
		if err != nil {
			return err
		}
		if missing := s.missingItems(c.CurrentStage, done); len(missing) > 0 {
			return checklistIncomplete(missing)
		}
	}

	now := nowFunc()
	status := s.deriveStatus(req.TargetStage, c.Status)
	progress := s.registry.Progress(req.TargetStage, c.ProgressPercentage)

	if err := tx.UpdateCaseStage(req.TargetStage, status, progress); err != nil {
		return err
	}

	var note *string
	if ptype == stage.Backward {
		n := "returned: " + req.Reason
		note = &n
	}
	if err := tx.DeactivateAssignment(prior.ID, note); err != nil {
		return err
	}

	next := &repository.StageAssignment{
		CaseID:         c.ID,
		Stage:          req.TargetStage,
		AssignedUserID: c.AssignedUserID,
		AssignedAt:     now,
		DueAt:          s.dueDate(req.TargetStage, now),
	}
	if err := tx.CreateAssignment(next); err != nil {
		return err
	}

	// A return re-gates the receiving stage from scratch.
	if ptype == stage.Backward {
		if err := tx.ResetCompletions(c.ID, req.TargetStage); err != nil {
			return err
		}
	}

	duration := int(now.Sub(prior.AssignedAt).Hours() / 24)
	fromStage := c.CurrentStage
	progression := &repository.StageProgression{
		CaseID:       c.ID,
		FromStage:    &fromStage,
		ToStage:      req.TargetStage,
		Type:         ptype,
		Reason:       req.Reason,
		Observations: req.Observations,
		ApprovedBy:   actor.UserID,
		DurationDays: &duration,
		RequestIP:    optional(actor.IP),
		RequestAgent: optional(actor.UserAgent),
	}
	if err := tx.InsertProgression(progression); err != nil {
		return err
	}

	prevStage := string(c.CurrentStage)
	newStage := string(req.TargetStage)
	history := &repository.CaseHistory{
		CaseID:        c.ID,
		Field:         "current_stage",
		PreviousValue: &prevStage,
		NewValue:      &newStage,
		Reason:        optional(req.Reason),
		Notes:         req.Observations,
		PerformedBy:   actor.UserID,
	}
	if err := tx.InsertHistory(history); err != nil {
		return err
	}

	updated := *c
	updated.CurrentStage = req.TargetStage
	updated.Status = status
	updated.ProgressPercentage = progress
	updated.UpdatedAt = now

	result.Case = &updated
	result.Assignment = next
	result.Progression = progression
	return nil
}

// autoAssign resolves the entered stage's assignment rule and applies it.
// Shared by transition and case creation; never fails the caller's
// operation, problems become warnings on the result.
func autoAssign(ctx context.Context, registry *stage.Registry, store Store, log *logger.Logger, result *TransitionResult) {
	warn := func(msg string) {
		metrics.AutoAssignFailures.Inc()
		result.Warnings = append(result.Warnings, msg)
		log.Warn().Str("case_id", result.Case.ID).Msg(msg)
	}

	st, err := registry.Lookup(result.Case.CurrentStage)
	if err != nil || st.AutoAssignment == nil {
		log.Debug().
			Str("case_id", result.Case.ID).
			Str("stage", string(result.Case.CurrentStage)).
			Msg("No auto-assignment rule for stage")
		return
	}

	rule := st.AutoAssignment
	user, err := store.FindAssignableUser(ctx, rule.Role, rule.Department)
	if err != nil {
		warn(fmt.Sprintf("auto-assignment lookup failed: %v", err))
		return
	}
	if user == nil {
		warn(fmt.Sprintf("no active user with role %s available for auto-assignment", rule.Role))
		return
	}

	if err := store.AssignCase(ctx, result.Case.ID, &user.ID); err != nil {
		warn(fmt.Sprintf("auto-assignment could not be applied: %v", err))
		return
	}

	result.Case.AssignedUserID = &user.ID
	result.Assignment.AssignedUserID = &user.ID
	log.Info().
		Str("case_id", result.Case.ID).
		Str("user_id", user.ID).
		Int("open_cases", user.OpenCases).
		Msg("Case auto-assigned")
}

// gateApplies reports whether the checklist gate guards this transition:
// forward moves out of an ordinary main stage only.
func (s *TransitionService) gateApplies(ptype stage.ProgressionType, current stage.ID) bool {
	return ptype == stage.Forward && !s.registry.IsSpecial(current)
}

// missingItems returns the current stage's required items without a
// completed record.
func (s *TransitionService) missingItems(current stage.ID, done map[string]bool) []MissingItem {
	var missing []MissingItem
	for _, item := range s.registry.RequiredItems(current) {
		if !done[item.ID] {
			missing = append(missing, MissingItem{ItemID: item.ID, Label: item.Label})
		}
	}
	return missing
}

// deriveStatus computes the case status on entering target.
func (s *TransitionService) deriveStatus(target stage.ID, current repository.CaseStatus) repository.CaseStatus {
	switch {
	case target == s.registry.Terminal().ID:
		return repository.StatusCompleted
	case target == stage.Suspended:
		return repository.StatusSuspended
	case target == stage.Cancelled:
		return repository.StatusCancelled
	case current == repository.StatusPending:
		return repository.StatusInProgress
	case current == repository.StatusSuspended || current == repository.StatusCancelled:
		// Leaving a holding state resumes active processing.
		return repository.StatusInProgress
	default:
		return current
	}
}

// dueDate computes the new assignment's due date from the stage's estimated
// duration, or nil when the stage defines no estimate.
func (s *TransitionService) dueDate(target stage.ID, now time.Time) *time.Time {
	st, err := s.registry.Lookup(target)
	if err != nil || st.EstimatedDurationDays <= 0 {
		return nil
	}
	due := now.AddDate(0, 0, st.EstimatedDurationDays)
	return &due
}

func (s *TransitionService) observe(req TransitionRequest, result *TransitionResult, err error) {
	ptype := "unknown"
	outcome := "accepted"
	if result != nil && result.Progression != nil {
		ptype = string(result.Progression.Type)
	}
	switch errors.Code(err) {
	case "":
	case errors.ErrCodeConflict:
		outcome = "conflict"
	case errors.ErrCodeInternal:
		outcome = "error"
	default:
		outcome = "rejected"
	}
	metrics.TransitionsTotal.WithLabelValues(ptype, outcome).Inc()
}

func checklistIncomplete(missing []MissingItem) error {
	return errors.New(errors.ErrCodeChecklistIncomplete,
		fmt.Sprintf("%d required checklist item(s) incomplete", len(missing))).
		WithDetails(missing)
}

func caseRef(c *repository.Case) auth.CaseRef {
	ref := auth.CaseRef{DepartmentID: c.DepartmentID}
	if c.AssignedUserID != nil {
		ref.AssignedUserID = *c.AssignedUserID
	}
	if c.SupervisorUserID != nil {
		ref.SupervisorUserID = *c.SupervisorUserID
	}
	return ref
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
