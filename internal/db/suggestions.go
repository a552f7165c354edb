package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/jmoiron/sqlx"
)

type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusAccepted SuggestionStatus = "accepted"
	StatusRejected SuggestionStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s SuggestionStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

type Suggestion struct {
	ID          int64            `db:"id"`
	SubmitterID int64            `db:"submitter_id"`
	ImageRef    string           `db:"image_ref"`
	Caption     string           `db:"caption"`
	Status      SuggestionStatus `db:"status"`
	CreatedAt   time.Time        `db:"created_at"`
	DecidedAt   *time.Time       `db:"decided_at"`
	DecidedBy   *int64           `db:"decided_by"`

	// SubmitterName is joined from users and is not a suggestions column.
	SubmitterName string `db:"display_name"`
}

const selectSuggestion = `
    SELECT
        s.id, s.submitter_id, s.image_ref, s.caption, s.status,
        s.created_at, s.decided_at, s.decided_by,
        COALESCE(u.display_name, '') AS display_name
    FROM suggestions s
    LEFT JOIN users u ON u.id = s.submitter_id
    WHERE s.id = $1
`

type SuggestionRepository struct {
	db *sqlx.DB
}

func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{
		db: db,
	}
}

// Create stores a new pending suggestion and returns its id.
func (r *SuggestionRepository) Create(ctx context.Context, s *Suggestion) (int64, error) {
	var id int64

	err := r.db.GetContext(ctx, &id, `
	    INSERT INTO suggestions (submitter_id, image_ref, caption, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id
	`, s.SubmitterID, s.ImageRef, s.Caption)

	if err != nil {
		return 0, fmt.Errorf("SuggestionRepository.Create: %w", err)
	}

	return id, nil
}

func (r *SuggestionRepository) GetByID(ctx context.Context, id int64) (*Suggestion, error) {
	var s Suggestion

	err := r.db.GetContext(ctx, &s, selectSuggestion, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("SuggestionRepository.GetByID: %w", err)
	}

	return &s, nil
}

// Decide moves a pending suggestion to a terminal status. The row is locked
// for the whole transaction, so concurrent decisions on the same id are
// serialized and only the first one wins. A suggestion that is no longer
// pending is returned together with ErrNotPending.
func (r *SuggestionRepository) Decide(ctx context.Context, id int64, status SuggestionStatus, adminID int64) (*Suggestion, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("SuggestionRepository.Decide: invalid target status %q", status)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SuggestionRepository.Decide: begin: %w", err)
	}
	defer tx.Rollback()

	var s Suggestion

	err = tx.GetContext(ctx, &s, selectSuggestion+` FOR UPDATE OF s`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("SuggestionRepository.Decide: select: %w", err)
	}

	if s.Status != StatusPending {
		return &s, ErrNotPending
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
	    UPDATE suggestions
		SET status = $1, decided_at = $2, decided_by = $3
		WHERE id = $4
	`, status, now, adminID, id)

	if err != nil {
		return nil, fmt.Errorf("SuggestionRepository.Decide: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SuggestionRepository.Decide: commit: %w", err)
	}

	s.Status = status
	s.DecidedAt = pointer.To(now)
	s.DecidedBy = pointer.ToInt64(adminID)

	return &s, nil
}
