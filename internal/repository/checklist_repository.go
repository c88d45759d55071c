package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// ChecklistRepository manages checklist completion records. The checklist
// items themselves are template data owned by the stage catalog; only the
// per-assignment completion state lives in the store.
type ChecklistRepository struct {
	db *database.DB
}

// NewChecklistRepository creates a new ChecklistRepository.
func NewChecklistRepository(db *database.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

const completionColumns = `
	id, assignment_id, item_id, completed, completed_by, completed_at,
	created_at, updated_at
`

// ListByAssignment returns all completion records for an assignment.
func (r *ChecklistRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*ChecklistCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM checklist_completions WHERE assignment_id = $1 ORDER BY item_id ASC`

	rows, err := r.db.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list checklist completions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CompletedItemIDs returns the set of item ids with a completed record for
// the assignment.
func (r *ChecklistRepository) CompletedItemIDs(ctx context.Context, assignmentID string) (map[string]bool, error) {
	return r.completedItemIDs(ctx, r.db, assignmentID)
}

// CompletedItemIDsTx is CompletedItemIDs inside the transition transaction,
// used for the authoritative gate re-check.
func (r *ChecklistRepository) CompletedItemIDsTx(ctx context.Context, tx pgx.Tx, assignmentID string) (map[string]bool, error) {
	return r.completedItemIDs(ctx, tx, assignmentID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *ChecklistRepository) completedItemIDs(ctx context.Context, q querier, assignmentID string) (map[string]bool, error) {
	query := `SELECT item_id FROM checklist_completions WHERE assignment_id = $1 AND completed = TRUE`

	rows, err := q.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query checklist completions")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan checklist completion")
		}
		done[itemID] = true
	}
	return done, nil
}

// MarkItem upserts the completion state of one checklist item on an
// assignment. Unmarking nulls the completion timestamp and completer.
func (r *ChecklistRepository) MarkItem(
	ctx context.Context,
	assignmentID, itemID string,
	completed bool,
	userID string,
) (*ChecklistCompletion, error) {
	query := `
		INSERT INTO checklist_completions
		    (id, assignment_id, item_id, completed, completed_by, completed_at)
		VALUES ($1, $2, $3, $4,
		        CASE WHEN $4 THEN $5 END,
		        CASE WHEN $4 THEN NOW() END)
		ON CONFLICT (assignment_id, item_id) DO UPDATE
		SET completed    = EXCLUDED.completed,
		    completed_by = EXCLUDED.completed_by,
		    completed_at = EXCLUDED.completed_at,
		    updated_at   = NOW()
		RETURNING ` + completionColumns + `
	`

	c, err := r.scanCompletion(r.db.QueryRow(ctx, query, uuid.New().String(), assignmentID, itemID, completed, userID))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to mark checklist item")
	}
	return c, nil
}

// ResetForStage clears every completion tied to any assignment of the case
// at the given stage, so a re-entered stage is gated from scratch.
func (r *ChecklistRepository) ResetForStage(ctx context.Context, tx pgx.Tx, caseID string, stageID stage.ID) error {
	query := `
		UPDATE checklist_completions
		SET completed    = FALSE,
		    completed_by = NULL,
		    completed_at = NULL,
		    updated_at   = NOW()
		WHERE assignment_id IN (
		    SELECT id FROM stage_assignments WHERE case_id = $1 AND stage = $2
		)
	`

	if _, err := tx.Exec(ctx, query, caseID, stageID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to reset checklist completions")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type completionScanner interface {
	Scan(dest ...any) error
}

func (r *ChecklistRepository) scanCompletion(row completionScanner) (*ChecklistCompletion, error) {
	c := &ChecklistCompletion{}
	err := row.Scan(
		&c.ID,
		&c.AssignmentID,
		&c.ItemID,
		&c.Completed,
		&c.CompletedBy,
		&c.CompletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChecklistRepository) scanRows(rows pgx.Rows) ([]*ChecklistCompletion, error) {
	var completions []*ChecklistCompletion
	for rows.Next() {
		c, err := r.scanCompletion(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan checklist completion")
		}
		completions = append(completions, c)
	}
	return completions, nil
}
