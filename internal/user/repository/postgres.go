package repository

import (
	"context"
	"database/sql"
	"errors"

	"campuspay/internal/user"
	"campuspay/pkg/db"
)

var ErrUserNotFound = errors.New("user not found")

type PostgresUserRepository struct {
	db db.DBTX
}

func NewPostgresUserRepository(conn db.DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: conn}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u := &user.User{}
	query := `SELECT id, email, full_name, role, created_at, updated_at FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *PostgresUserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
