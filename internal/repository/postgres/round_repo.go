package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeeve/polite-concession/internal/model"
)

// RoundRepo handles round database operations.
type RoundRepo struct {
	db *sql.DB
}

// NewRoundRepo creates a RoundRepo.
func NewRoundRepo(db *sql.DB) *RoundRepo {
	return &RoundRepo{db: db}
}

// SaveRound inserts one round. A missing ID is generated.
func (r *RoundRepo) SaveRound(ctx context.Context, rd model.Round) error {
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rounds (id, session_id, number, side, action, offer, utility, target, time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rd.ID, rd.SessionID, rd.Number, rd.Side, rd.Action, []byte(rd.Offer), rd.Utility, rd.Target, rd.Time)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

// ListBySession returns a session's rounds in play order.
func (r *RoundRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Round, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, number, side, action, offer, utility, target, time, created_at
		 FROM rounds WHERE session_id = $1 ORDER BY number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []model.Round
	for rows.Next() {
		var rd model.Round
		if err := rows.Scan(&rd.ID, &rd.SessionID, &rd.Number, &rd.Side, &rd.Action, &rd.Offer,
			&rd.Utility, &rd.Target, &rd.Time, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, rd)
	}
	return rounds, rows.Err()
}
