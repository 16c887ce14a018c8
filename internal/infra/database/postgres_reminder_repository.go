// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/reminder"
)

const onePendingConstraint = "reminders_one_pending_per_client"

const reminderColumns = `id, user_id, client_id, scheduled_at, status, created_at, updated_at`

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) Create(ctx context.Context, rem *reminder.Reminder) error {
	if err := insertReminder(ctx, r.db, rem); err != nil {
		if isUniqueViolation(err, onePendingConstraint) {
			return reminder.ErrPendingExists
		}
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

// ReplacePending locks the client row so concurrent replacements for the same
// client serialize, then cancels and inserts inside one transaction.
func (r *PostgresReminderRepository) ReplacePending(ctx context.Context, rem *reminder.Reminder) (int64, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for reminder replace: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	var lockedID string
	err = txn.QueryRowContext(ctx, `SELECT id FROM clients WHERE id = $1 FOR UPDATE`, rem.ClientID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, client.ErrNotFound
		}
		return 0, fmt.Errorf("error locking client %s: %w", rem.ClientID, err)
	}

	res, err := txn.ExecContext(ctx,
		`UPDATE reminders SET status = $1, updated_at = $2 WHERE client_id = $3 AND status = $4`,
		string(reminder.StatusCancelled), rem.CreatedAt, rem.ClientID, string(reminder.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("error cancelling pending reminders for client %s: %w", rem.ClientID, err)
	}
	cancelled, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading cancelled count: %w", err)
	}

	if err := insertReminder(ctx, txn, rem); err != nil {
		if isUniqueViolation(err, onePendingConstraint) {
			return 0, reminder.ErrPendingExists
		}
		return 0, fmt.Errorf("error inserting replacement reminder: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reminder replace: %w", err)
	}
	return cancelled, nil
}

func (r *PostgresReminderRepository) CancelPendingByClient(ctx context.Context, clientID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, updated_at = $2 WHERE client_id = $3 AND status = $4`,
		string(reminder.StatusCancelled), at, clientID, string(reminder.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("error cancelling pending reminders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading cancelled count: %w", err)
	}
	return n, nil
}

func (r *PostgresReminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE status = $1 AND scheduled_at <= $2
               ORDER BY scheduled_at ASC, created_at ASC
               LIMIT $3` // Oldest due first
	rows, err := r.db.QueryContext(ctx, query, string(reminder.StatusPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkSent only succeeds while the reminder is still pending.
func (r *PostgresReminderRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(reminder.StatusSent), at, id, string(reminder.StatusPending))
	if err != nil {
		return fmt.Errorf("error marking reminder sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading updated count: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return reminder.ErrNotPending
}

func (r *PostgresReminderRepository) CountPendingByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE user_id = $1 AND status = $2`,
		userID, string(reminder.StatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting pending reminders: %w", err)
	}
	return count, nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id string) (*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`
	rem := reminder.Reminder{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rem.ID, &rem.UserID, &rem.ClientID, &rem.ScheduledAt, &rem.Status, &rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reminder.ErrNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return &rem, nil
}

func (r *PostgresReminderRepository) ListByClient(ctx context.Context, clientID string) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE client_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders by client: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertReminder(ctx context.Context, db execer, rem *reminder.Reminder) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reminders (`+reminderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rem.ID, rem.UserID, rem.ClientID, rem.ScheduledAt, string(rem.Status), rem.CreatedAt, rem.UpdatedAt)
	return err
}

// Helper to scan multiple rows
func scanReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		rem := reminder.Reminder{}
		if err := rows.Scan(
			&rem.ID, &rem.UserID, &rem.ClientID, &rem.ScheduledAt, &rem.Status, &rem.CreatedAt, &rem.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, &rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}
