package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// HistoryRepository appends and reads case history audit entries.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert appends one history entry inside the transition transaction.
func (r *HistoryRepository) Insert(ctx context.Context, tx pgx.Tx, h *CaseHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	query := `
		INSERT INTO case_history
		    (id, case_id, field, previous_value, new_value, reason, notes, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING performed_at
	`

	err := tx.QueryRow(ctx, query,
		h.ID,
		h.CaseID,
		h.Field,
		h.PreviousValue,
		h.NewValue,
		h.Reason,
		h.Notes,
		h.PerformedBy,
	).Scan(&h.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert case history entry")
	}
	return nil
}

// ListByCase returns the history trail for a case, oldest first.
func (r *HistoryRepository) ListByCase(ctx context.Context, caseID string) ([]*CaseHistory, error) {
	query := `
		SELECT id, case_id, field, previous_value, new_value,
		       reason, notes, performed_by, performed_at
		FROM case_history
		WHERE case_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list case history")
	}
	defer rows.Close()

	var entries []*CaseHistory
	for rows.Next() {
		h := &CaseHistory{}
		err := rows.Scan(
			&h.ID,
			&h.CaseID,
			&h.Field,
			&h.PreviousValue,
			&h.NewValue,
			&h.Reason,
			&h.Notes,
			&h.PerformedBy,
			&h.PerformedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan case history entry")
		}
		entries = append(entries, h)
	}
	return entries, nil
}
