package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crm_reminders/internal/domain/client"
)

type PostgresClientRepository struct {
	db *sql.DB
}

func NewPostgresClientRepository(db *sql.DB) *PostgresClientRepository {
	return &PostgresClientRepository{db: db}
}

func (r *PostgresClientRepository) Create(ctx context.Context, c *client.Client) error {
	query := `INSERT INTO clients (id, user_id, name, next_follow_up_at, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.UserID, c.Name, c.NextFollowUpAt, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("error creating client: %w", err)
	}
	return nil
}

func (r *PostgresClientRepository) GetByID(ctx context.Context, id string) (*client.Client, error) {
	query := `SELECT id, user_id, name, next_follow_up_at, created_at, updated_at
               FROM clients WHERE id = $1`
	c := &client.Client{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.UserID, &c.Name, &c.NextFollowUpAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, fmt.Errorf("error getting client by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresClientRepository) Update(ctx context.Context, c *client.Client) error {
	query := `UPDATE clients
               SET name = $1, next_follow_up_at = $2, updated_at = $3
               WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, c.Name, c.NextFollowUpAt, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("error updating client: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return client.ErrNotFound
	}
	return nil
}

// Delete removes the client; reminders go with it through ON DELETE CASCADE.
func (r *PostgresClientRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting client: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return client.ErrNotFound
	}
	return nil
}
