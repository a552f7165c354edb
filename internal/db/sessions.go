package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SessionState is the step of the chat flow a user is currently in.
type SessionState string

const (
	SessionIdle                 SessionState = "idle"
	SessionAwaitingRegistration SessionState = "awaiting_registration"
	SessionAwaitingSuggestion   SessionState = "awaiting_suggestion"
)

type Session struct {
	UserID    int64        `db:"user_id"`
	State     SessionState `db:"state"`
	UpdatedAt time.Time    `db:"updated_at"`
}

type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

// Get returns the stored session; users without one are idle.
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*Session, error) {
	var s Session

	err := r.db.GetContext(ctx, &s, `
	    SELECT user_id, state, updated_at FROM sessions
		WHERE user_id = $1
	`, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Session{UserID: userID, State: SessionIdle}, nil
		}

		return nil, fmt.Errorf("SessionRepository.Get: %w", err)
	}

	return &s, nil
}

func (r *SessionRepository) Set(ctx context.Context, userID int64, state SessionState) error {
	_, err := r.db.ExecContext(ctx, `
	    INSERT INTO sessions (user_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, userID, state)

	if err != nil {
		return fmt.Errorf("SessionRepository.Set: %w", err)
	}

	return nil
}
