package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type User struct {
	ID          int64     `db:"id"`
	DisplayName string    `db:"display_name"`
	Blocked     bool      `db:"blocked"`
	CreatedAt   time.Time `db:"created_at"`
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// Create inserts the user unless the id is already registered. The existing
// row is never updated; the result reports whether a row was inserted.
func (r *UserRepository) Create(ctx context.Context, user *User) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	    INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.DisplayName)

	if err != nil {
		return false, fmt.Errorf("UsersRepository.Create: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UsersRepository.Create: %w", err)
	}

	return n > 0, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*User, error) {
	var user User

	err := r.db.GetContext(ctx, &user, `
	    SELECT id, display_name, blocked, created_at FROM users
		WHERE id = $1
	`, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("UsersRepository.GetByID: %w", err)
	}

	return &user, nil
}

// Block marks the user as blocked. Unknown or already blocked users are
// left as they are.
func (r *UserRepository) Block(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
	    UPDATE users SET blocked = TRUE
		WHERE id = $1 AND blocked = FALSE
	`, userID)

	if err != nil {
		return fmt.Errorf("UsersRepository.Block: %w", err)
	}

	return nil
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64

	err := r.db.SelectContext(ctx, &ids, `
	    SELECT id FROM users
		ORDER BY id
	`)

	if err != nil {
		return nil, fmt.Errorf("UsersRepository.ListIDs: %w", err)
	}

	return ids, nil
}
