package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// ProgressionRepository appends and reads immutable stage progression
// records. The table has a delete-prevention trigger, so Insert is the only
// mutation operation exposed.
type ProgressionRepository struct {
	db *database.DB
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(db *database.DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

const progressionColumns = `
	id, case_id, from_stage, to_stage, progression_type,
	reason, observations, approved_by, duration_days,
	request_ip, request_agent, created_at
`

// Insert appends one progression record inside the transition transaction.
func (r *ProgressionRepository) Insert(ctx context.Context, tx pgx.Tx, p *StageProgression) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stage_progressions
		    (id, case_id, from_stage, to_stage, progression_type,
		     reason, observations, approved_by, duration_days,
		     request_ip, request_agent)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9,
		        $10, $11)
		RETURNING created_at
	`

	err := tx.QueryRow(ctx, query,
		p.ID,
		p.CaseID,
		p.FromStage,
		p.ToStage,
		p.Type,
		p.Reason,
		p.Observations,
		p.ApprovedBy,
		p.DurationDays,
		p.RequestIP,
		p.RequestAgent,
	).Scan(&p.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert stage progression")
	}
	return nil
}

// ListByCase returns the full progression trail for a case, oldest first.
func (r *ProgressionRepository) ListByCase(ctx context.Context, caseID string) ([]*StageProgression, error) {
	query := `SELECT ` + progressionColumns + ` FROM stage_progressions WHERE case_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stage progressions")
	}
	defer rows.Close()

	var progressions []*StageProgression
	for rows.Next() {
		p := &StageProgression{}
		err := rows.Scan(
			&p.ID,
			&p.CaseID,
			&p.FromStage,
			&p.ToStage,
			&p.Type,
			&p.Reason,
			&p.Observations,
			&p.ApprovedBy,
			&p.DurationDays,
			&p.RequestIP,
			&p.RequestAgent,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stage progression")
		}
		progressions = append(progressions, p)
	}
	return progressions, nil
}
