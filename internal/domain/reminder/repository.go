// internal/domain/reminder/repository.go
package reminder

import (
	"context"
	"time"
)

// Repository persists reminders. Implementations must keep at most one
// pending reminder per client.
type Repository interface {
	// Create inserts r. Returns ErrPendingExists if r is pending and the
	// client already has a pending reminder.
	Create(ctx context.Context, r *Reminder) error
	// ReplacePending cancels the client's pending reminders and inserts r in a
	// single atomic step. Returns client.ErrNotFound for an unknown client.
	ReplacePending(ctx context.Context, r *Reminder) (cancelled int64, err error)
	CancelPendingByClient(ctx context.Context, clientID string, at time.Time) (int64, error)
	// ListDue returns pending reminders scheduled at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
	// MarkSent moves a pending reminder to sent. Returns ErrNotPending if it
	// was cancelled or sent in the meantime.
	MarkSent(ctx context.Context, id string, at time.Time) error
	CountPendingByUser(ctx context.Context, userID string) (int, error)
	GetByID(ctx context.Context, id string) (*Reminder, error)
	ListByClient(ctx context.Context, clientID string) ([]*Reminder, error)
}
