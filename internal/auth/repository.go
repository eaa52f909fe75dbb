package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, username, role string) (*User, error) {
	var id uuid.UUID
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, username, role, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id
	`, uuid.New(), email, passwordHash, username, role)
	if err := row.Scan(&id); err != nil {
		return nil, err
	}
	return &User{ID: id, Email: email, Username: username, Role: role}, nil
}

// GetByEmail returns the user and password hash for login. Returns nil
// if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, string, error) {
	var u User
	var passwordHash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, role, password_hash
		FROM users WHERE email = $1
	`, email)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &passwordHash); err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &u, passwordHash, nil
}

// Get returns one user by id, nil if not found.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, role FROM users WHERE id = $1
	`, id)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Role); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
