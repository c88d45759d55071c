package service

import (
	"context"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// Store is the persistence surface the services depend on. The production
// implementation is repository.TransitionStore; tests use in-memory fakes.
type Store interface {
	GetCase(ctx context.Context, id string) (*repository.Case, error)
	GetCaseByFileNumber(ctx context.Context, fileNumber string) (*repository.Case, error)
	ListCases(ctx context.Context, departmentID, status *string, limit, offset int) ([]*repository.Case, error)
	CreateCase(ctx context.Context, c *repository.Case, a *repository.StageAssignment, p *repository.StageProgression, h *repository.CaseHistory) error
	SoftDeleteCase(ctx context.Context, caseID string) error

	// RunTransition executes fn atomically against the case row: the row is
	// locked, fn re-validates and mutates, and nothing is visible unless fn
	// returns nil.
	RunTransition(ctx context.Context, caseID string, fn func(tx repository.TransitionTx) error) error

	ActiveAssignment(ctx context.Context, caseID string) (*repository.StageAssignment, error)
	ListAssignments(ctx context.Context, caseID string) ([]*repository.StageAssignment, error)
	CompletedItemIDs(ctx context.Context, assignmentID string) (map[string]bool, error)
	ListChecklist(ctx context.Context, assignmentID string) ([]*repository.ChecklistCompletion, error)
	MarkChecklistItem(ctx context.Context, assignmentID, itemID string, completed bool, userID string) (*repository.ChecklistCompletion, error)
	ListProgressions(ctx context.Context, caseID string) ([]*repository.StageProgression, error)
	ListHistory(ctx context.Context, caseID string) ([]*repository.CaseHistory, error)

	FindAssignableUser(ctx context.Context, role auth.Role, departmentID *string) (*repository.User, error)
	AssignCase(ctx context.Context, caseID string, userID *string) error
}

var _ Store = (*repository.TransitionStore)(nil)

// Notifier publishes structured case events after successful operations.
// Delivery is fire-and-forget; implementations must never return errors
// into the critical path.
type Notifier interface {
	PublishCaseEvent(ctx context.Context, eventType string, event *CaseEvent)
}

// CaseEvent is the structured event handed to the notification dispatcher
// after an accepted transition or case creation.
type CaseEvent struct {
	CaseID         string                `json:"case_id"`
	FileNumber     string                `json:"file_number"`
	FromStage      *stage.ID             `json:"from_stage,omitempty"`
	ToStage        stage.ID              `json:"to_stage"`
	Type           stage.ProgressionType `json:"progression_type"`
	AssignedUserID *string               `json:"assigned_user_id,omitempty"`
	ProgressionID  string                `json:"progression_id"`
	ActorID        string                `json:"actor_id"`
}
