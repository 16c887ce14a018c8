// internal/domain/reminder/reminder.go
package reminder

import "time"

// Status is the lifecycle state of a follow-up reminder.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// Reminder is a scheduled follow-up for one client, owned by one user.
// Corresponds to the 'reminders' table.
type Reminder struct {
	ID          string
	UserID      string    // Owning salesperson (users.id)
	ClientID    string    // clients.id
	ScheduledAt time.Time // When the follow-up is due
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDue reports whether the reminder is pending and scheduled at or before now.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == StatusPending && !r.ScheduledAt.After(now)
}
