package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	id := params.Id
	if id == "" {
		id = uuid.New().String()
	}
	role := params.Role
	if role == "" {
		role = "user"
	}

	if _, err := s.db.ExecContext(ctx, queryInsertUser, id, params.Name, params.Email, params.PasswordHash, role); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	user, err := s.GetUserById(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("User created",
		zap.String("user_id", user.Id),
		zap.String("email", user.Email),
		zap.String("role", user.Role))

	s.publish(store.TableUsers, store.OpInsert, map[string]string{
		"id":    user.Id,
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
	})
	return user, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId))
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, queryGetUserByEmail, email))
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryListUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.Id, &user.Name, &user.Email, &user.PasswordHash,
			&user.Role, &user.Verified, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.PasswordHash,
		&user.Role, &user.Verified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (s *Service) SetUserVerified(ctx context.Context, userId string, verified bool) error {
	result, err := s.db.ExecContext(ctx, querySetUserVerified, verified, userId)
	if err != nil {
		return fmt.Errorf("failed to set user verified flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	s.publish(store.TableUsers, store.OpUpdate, map[string]string{
		"id":       userId,
		"verified": fmt.Sprintf("%t", verified),
	})
	return nil
}

// timestamps for rows inserted with explicit created_at values
func now() time.Time {
	return time.Now().UTC()
}
