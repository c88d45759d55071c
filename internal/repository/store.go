package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// TransitionTx is the store surface available inside a transition
// transaction. Every method operates under the row lock taken on the case
// when the transaction opened.
type TransitionTx interface {
	// Case returns the case row as freshly read under FOR UPDATE.
	Case() *Case
	UpdateCaseStage(stageID stage.ID, status CaseStatus, progress int) error
	ActiveAssignment() (*StageAssignment, error)
	DeactivateAssignment(id string, note *string) error
	CreateAssignment(a *StageAssignment) error
	CompletedItemIDs(assignmentID string) (map[string]bool, error)
	ResetCompletions(caseID string, stageID stage.ID) error
	InsertProgression(p *StageProgression) error
	InsertHistory(h *CaseHistory) error
}

// TransitionStore composes the repositories behind the narrow store
// interface the services depend on, and owns the transaction boundary of
// the transition critical path.
type TransitionStore struct {
	db           *database.DB
	cases        *CaseRepository
	assignments  *AssignmentRepository
	checklist    *ChecklistRepository
	progressions *ProgressionRepository
	history      *HistoryRepository
	users        *UserRepository
}

// NewTransitionStore creates a new TransitionStore.
func NewTransitionStore(
	db *database.DB,
	cases *CaseRepository,
	assignments *AssignmentRepository,
	checklist *ChecklistRepository,
	progressions *ProgressionRepository,
	history *HistoryRepository,
	users *UserRepository,
) *TransitionStore {
	return &TransitionStore{
		db:           db,
		cases:        cases,
		assignments:  assignments,
		checklist:    checklist,
		progressions: progressions,
		history:      history,
		users:        users,
	}
}

// GetCase retrieves a case by id.
func (s *TransitionStore) GetCase(ctx context.Context, id string) (*Case, error) {
	return s.cases.GetByID(ctx, id)
}

// GetCaseByFileNumber retrieves a case by file number.
func (s *TransitionStore) GetCaseByFileNumber(ctx context.Context, fileNumber string) (*Case, error) {
	return s.cases.GetByFileNumber(ctx, fileNumber)
}

// ListCases lists cases with optional department/status filters.
func (s *TransitionStore) ListCases(ctx context.Context, departmentID, status *string, limit, offset int) ([]*Case, error) {
	return s.cases.List(ctx, departmentID, status, limit, offset)
}

// CreateCase persists a new case with its initial assignment, progression
// and history entry in a single transaction.
func (s *TransitionStore) CreateCase(ctx context.Context, c *Case, a *StageAssignment, p *StageProgression, h *CaseHistory) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.cases.Create(ctx, tx, c); err != nil {
			return err
		}
		a.CaseID = c.ID
		if err := s.assignments.Create(ctx, tx, a); err != nil {
			return err
		}
		p.CaseID = c.ID
		if err := s.progressions.Insert(ctx, tx, p); err != nil {
			return err
		}
		h.CaseID = c.ID
		return s.history.Insert(ctx, tx, h)
	})
}

// RunTransition opens the transition transaction: it locks the case row,
// hands a TransitionTx to fn, and commits only when fn succeeds. Everything
// fn writes is atomic with the lock.
func (s *TransitionStore) RunTransition(ctx context.Context, caseID string, fn func(tx TransitionTx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		c, err := s.cases.GetForUpdate(ctx, tx, caseID)
		if err != nil {
			return err
		}
		return fn(&pgxTransitionTx{ctx: ctx, tx: tx, store: s, cse: c})
	})
}

// ActiveAssignment returns the case's active assignment outside any
// transaction (pre-checks, checklist reads).
func (s *TransitionStore) ActiveAssignment(ctx context.Context, caseID string) (*StageAssignment, error) {
	return s.assignments.GetActive(ctx, caseID)
}

// ListAssignments returns the case's assignment trail.
func (s *TransitionStore) ListAssignments(ctx context.Context, caseID string) ([]*StageAssignment, error) {
	return s.assignments.ListByCase(ctx, caseID)
}

// CompletedItemIDs returns the completed checklist item ids of an assignment.
func (s *TransitionStore) CompletedItemIDs(ctx context.Context, assignmentID string) (map[string]bool, error) {
	return s.checklist.CompletedItemIDs(ctx, assignmentID)
}

// ListChecklist returns all completion records of an assignment.
func (s *TransitionStore) ListChecklist(ctx context.Context, assignmentID string) ([]*ChecklistCompletion, error) {
	return s.checklist.ListByAssignment(ctx, assignmentID)
}

// MarkChecklistItem upserts one completion record.
func (s *TransitionStore) MarkChecklistItem(ctx context.Context, assignmentID, itemID string, completed bool, userID string) (*ChecklistCompletion, error) {
	return s.checklist.MarkItem(ctx, assignmentID, itemID, completed, userID)
}

// ListProgressions returns the case's progression trail.
func (s *TransitionStore) ListProgressions(ctx context.Context, caseID string) ([]*StageProgression, error) {
	return s.progressions.ListByCase(ctx, caseID)
}

// ListHistory returns the case's history trail.
func (s *TransitionStore) ListHistory(ctx context.Context, caseID string) ([]*CaseHistory, error) {
	return s.history.ListByCase(ctx, caseID)
}

// SoftDeleteCase marks the case deleted, keeping its audit trail.
func (s *TransitionStore) SoftDeleteCase(ctx context.Context, caseID string) error {
	return s.cases.SoftDelete(ctx, caseID)
}

// FindAssignableUser answers the auto-assignment query.
func (s *TransitionStore) FindAssignableUser(ctx context.Context, role auth.Role, departmentID *string) (*User, error) {
	return s.users.FindAssignable(ctx, role, departmentID)
}

// AssignCase sets the assignee on the case row and its active assignment.
// Runs outside the transition transaction; failures are the caller's to
// downgrade.
func (s *TransitionStore) AssignCase(ctx context.Context, caseID string, userID *string) error {
	if err := s.cases.UpdateAssignee(ctx, caseID, userID); err != nil {
		return err
	}
	return s.assignments.UpdateActiveUser(ctx, caseID, userID)
}

// ── pgx-backed TransitionTx ───────────────────────────────────────────────────

type pgxTransitionTx struct {
	ctx   context.Context
	tx    pgx.Tx
	store *TransitionStore
	cse   *Case
}

func (t *pgxTransitionTx) Case() *Case {
	return t.cse
}

func (t *pgxTransitionTx) UpdateCaseStage(stageID stage.ID, status CaseStatus, progress int) error {
	return t.store.cases.UpdateStage(t.ctx, t.tx, t.cse.ID, stageID, status, progress)
}

func (t *pgxTransitionTx) ActiveAssignment() (*StageAssignment, error) {
	return t.store.assignments.GetActiveTx(t.ctx, t.tx, t.cse.ID)
}

func (t *pgxTransitionTx) DeactivateAssignment(id string, note *string) error {
	return t.store.assignments.Deactivate(t.ctx, t.tx, id, note)
}

func (t *pgxTransitionTx) CreateAssignment(a *StageAssignment) error {
	return t.store.assignments.Create(t.ctx, t.tx, a)
}

func (t *pgxTransitionTx) CompletedItemIDs(assignmentID string) (map[string]bool, error) {
	return t.store.checklist.CompletedItemIDsTx(t.ctx, t.tx, assignmentID)
}

func (t *pgxTransitionTx) ResetCompletions(caseID string, stageID stage.ID) error {
	return t.store.checklist.ResetForStage(t.ctx, t.tx, caseID, stageID)
}

func (t *pgxTransitionTx) InsertProgression(p *StageProgression) error {
	return t.store.progressions.Insert(t.ctx, t.tx, p)
}

func (t *pgxTransitionTx) InsertHistory(h *CaseHistory) error {
	return t.store.history.Insert(t.ctx, t.tx, h)
}
