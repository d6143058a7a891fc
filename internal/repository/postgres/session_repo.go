package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/polite-concession/internal/model"
)

const sessionColumns = `id, name, owner_id, scenario, domain, party_a, party_b, agent_side, params, max_rounds,
	status, agreement, utility_a, utility_b, rounds, accepted_by, created_at, finished_at`

// SessionRepo handles negotiation session database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var params, agreement []byte
	if err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &s.Scenario, &s.Domain, &s.PartyA, &s.PartyB, &s.AgentSide,
		&params, &s.MaxRounds, &s.Status, &agreement, &s.UtilityA, &s.UtilityB, &s.Rounds, &s.AcceptedBy,
		&s.CreatedAt, &s.FinishedAt); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &s.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(agreement) > 0 {
		s.Agreement = json.RawMessage(agreement)
	}
	return &s, nil
}

// Create inserts a new session. The caller supplies the ID.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	if s.Params == nil {
		params = []byte("{}")
	}
	status := s.Status
	if status == "" {
		status = model.StatusActive
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, name, owner_id, scenario, domain, party_a, party_b, agent_side, params, max_rounds, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+sessionColumns,
		s.ID, s.Name, s.OwnerID, s.Scenario, []byte(s.Domain), s.PartyA, s.PartyB, s.AgentSide, params, s.MaxRounds, status,
	)
	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

// FindByID returns a session by ID, or nil if it does not exist.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// ListByOwner returns a user's sessions, most recent first.
func (r *SessionRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Session, error) {
	return r.list(ctx, "list owner sessions",
		`SELECT `+sessionColumns+` FROM sessions WHERE owner_id = $1 ORDER BY created_at DESC LIMIT 50`, ownerID)
}

// ListActive returns sessions that have not finished.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx, "list active sessions",
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'active' ORDER BY created_at`)
}

func (r *SessionRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// SetFinished records the outcome and marks the session finished.
func (r *SessionRepo) SetFinished(ctx context.Context, id string, o model.Outcome) error {
	var agreement any
	if len(o.Agreement) > 0 {
		agreement = []byte(o.Agreement)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = $2, agreement = $3, utility_a = $4, utility_b = $5, rounds = $6,
		        accepted_by = $7, finished_at = now()
		 WHERE id = $1`,
		id, o.Status, agreement, o.UtilityA, o.UtilityB, o.Rounds, o.AcceptedBy)
	if err != nil {
		return fmt.Errorf("set session finished: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set session finished: session %s not found", id)
	}
	return nil
}
