package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crm_reminders/internal/domain/user"
)

var ErrDuplicateTelegramChatID = fmt.Errorf("user with this Telegram chat ID already exists")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (id, name, telegram_chat_id, is_active)
               VALUES ($1, $2, $3, $4)
               RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, u.ID, u.Name, u.TelegramChatID, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_telegram_chat_id_key") {
			return ErrDuplicateTelegramChatID
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT id, name, telegram_chat_id, is_active, created_at, updated_at
               FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresUserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*user.User, error) {
	query := `SELECT id, name, telegram_chat_id, is_active, created_at, updated_at
               FROM users WHERE telegram_chat_id = $1`
	return r.getOne(ctx, query, chatID)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*user.User, error) {
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.TelegramChatID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}
