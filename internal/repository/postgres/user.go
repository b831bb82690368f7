package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ repository.UserRepository = (*UserStore)(nil)

// Create inserts a new user row. The ID is chosen by the caller.
func (s *UserStore) Create(ctx context.Context, u models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, name, email, user_type, department, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, email, user_type, department, created_at`

	var out models.User
	err := s.pool.QueryRow(ctx, query, u.ID, u.Name, u.Email, u.UserType, u.Department, u.CreatedAt).Scan(
		&out.ID,
		&out.Name,
		&out.Email,
		&out.UserType,
		&out.Department,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, wrap("insert user", err)
	}
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, name, email, user_type, department, created_at
		FROM users
		WHERE id = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.UserType,
		&u.Department,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("get user", err)
	}
	return &u, nil
}

// ListByIDs keeps the caller's order: WITH ORDINALITY numbers the input
// array and the join drops ids that have no users row.
func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
		SELECT u.id, u.name, u.email, u.user_type, u.department, u.created_at
		FROM unnest($1::text[]) WITH ORDINALITY AS want(id, ord)
		JOIN users u ON u.id = want.id::uuid
		ORDER BY want.ord`

	rows, err := s.pool.Query(ctx, query, raw)
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.Department, &u.CreatedAt); err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate users", err)
	}
	return users, nil
}
