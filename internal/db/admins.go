package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Admin struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

type AdminRepository struct {
	db *sqlx.DB
}

func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{
		db: db,
	}
}

func (r *AdminRepository) GetAll(ctx context.Context) ([]Admin, error) {
	var admins []Admin

	err := r.db.SelectContext(ctx, &admins, `
	    SELECT id, created_at FROM admins
		ORDER BY id
	`)

	if err != nil {
		return nil, fmt.Errorf("AdminRepository.GetAll: %w", err)
	}

	return admins, nil
}

func (r *AdminRepository) IsAdmin(ctx context.Context, id int64) (bool, error) {
	var exists bool

	err := r.db.GetContext(ctx, &exists, `
	    SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)
	`, id)

	if err != nil {
		return false, fmt.Errorf("AdminRepository.IsAdmin: %w", err)
	}

	return exists, nil
}

// Create is only used to seed the registry at startup.
func (r *AdminRepository) Create(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
	    INSERT INTO admins (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, id)

	if err != nil {
		return fmt.Errorf("AdminRepository.Create: %w", err)
	}

	return nil
}
