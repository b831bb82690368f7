package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type UserStore struct {
	db *sql.DB
}

var _ repository.UserRepository = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, u models.User) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, user_type, department, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Name, u.Email, u.UserType, u.Department, toMicros(u.CreatedAt),
	)
	if err != nil {
		return nil, wrap("insert user", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var (
		u         models.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, email, user_type, department, created_at
		FROM users WHERE id = ?`, userID.String()).Scan(
		&u.Name, &u.Email, &u.UserType, &u.Department, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("load user", err)
	}
	u.ID = userID
	u.CreatedAt = fromMicros(createdAt)
	return &u, nil
}

// ListByIDs looks users up one at a time. Member lists are small and the
// single connection makes a dynamic IN clause no faster.
func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}
