// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/domain/user"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDueLimit = 50
	MaxDueLimit     = 500
)

// ReminderService owns the reminder lifecycle: creation, supersession by a
// new follow-up date, cancellation and the due/pending queries.
type ReminderService struct {
	reminderRepo reminder.Repository
	clientRepo   client.Repository
	userRepo     user.Repository
	logger       *logrus.Entry
	now          func() time.Time
}

// Option configures a ReminderService or ClientService.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewReminderService(
	rr reminder.Repository,
	cr client.Repository,
	ur user.Repository,
	logger *logrus.Entry,
	opts ...Option,
) *ReminderService {
	o := buildOptions(opts)
	return &ReminderService{
		reminderRepo: rr,
		clientRepo:   cr,
		userRepo:     ur,
		logger:       logger.WithField("component", "reminder_service"),
		now:          o.now,
	}
}

// CreateReminder schedules a new pending reminder. It refuses to create a
// second pending reminder for a client that already has one; use
// UpdateReminder to supersede it. Past times are accepted and become due on
// the next cycle.
func (s *ReminderService) CreateReminder(ctx context.Context, userID, clientID string, scheduledAt time.Time) (*reminder.Reminder, error) {
	if err := validateIDs(userID, clientID); err != nil {
		return nil, err
	}
	if err := validateScheduledAt(scheduledAt); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if _, err := s.clientRepo.GetByID(ctx, clientID); err != nil {
		return nil, fmt.Errorf("failed to get client %s: %w", clientID, err)
	}

	r := s.newPending(userID, clientID, scheduledAt)
	if err := s.reminderRepo.Create(ctx, r); err != nil {
		if errors.Is(err, reminder.ErrPendingExists) {
			s.logger.WithField("client_id", clientID).Warn("Refusing to create a second pending reminder")
		}
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"reminder_id":  r.ID,
		"client_id":    clientID,
		"user_id":      userID,
		"scheduled_at": r.ScheduledAt,
	}).Info("Reminder created")
	return r, nil
}

// CancelRemindersByClient cancels every pending reminder of the client.
// Calling it when nothing is pending is a no-op.
func (s *ReminderService) CancelRemindersByClient(ctx context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", reminder.ErrInvalidInput)
	}

	n, err := s.reminderRepo.CancelPendingByClient(ctx, clientID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cancel reminders for client %s: %w", clientID, err)
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{"client_id": clientID, "cancelled": n}).Info("Pending reminders cancelled")
	}
	return nil
}

// UpdateReminder supersedes the client's pending reminder with a new one at
// scheduledAt. Cancel and create happen atomically in the store, so two
// concurrent calls for the same client never leave two pending reminders.
func (s *ReminderService) UpdateReminder(ctx context.Context, clientID string, scheduledAt time.Time) (*reminder.Reminder, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client id is required", reminder.ErrInvalidInput)
	}
	if err := validateScheduledAt(scheduledAt); err != nil {
		return nil, err
	}

	c, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client %s: %w", clientID, err)
	}

	r := s.newPending(c.UserID, c.ID, scheduledAt)
	cancelled, err := s.reminderRepo.ReplacePending(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to replace pending reminder for client %s: %w", clientID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"reminder_id":  r.ID,
		"client_id":    c.ID,
		"user_id":      c.UserID,
		"scheduled_at": r.ScheduledAt,
		"cancelled":    cancelled,
	}).Info("Reminder rescheduled")
	return r, nil
}

// GetDueReminders returns a snapshot of pending reminders due now, oldest
// first. A non-positive limit means DefaultDueLimit; limits above MaxDueLimit
// are clamped.
func (s *ReminderService) GetDueReminders(ctx context.Context, limit int) ([]*reminder.Reminder, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	if limit > MaxDueLimit {
		limit = MaxDueLimit
	}
	due, err := s.reminderRepo.ListDue(ctx, s.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return due, nil
}

func (s *ReminderService) GetPendingReminderCount(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", reminder.ErrInvalidInput)
	}
	n, err := s.reminderRepo.CountPendingByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reminders for user %s: %w", userID, err)
	}
	return n, nil
}

// PendingReminder returns the client's pending reminder, or nil if it has none.
func (s *ReminderService) PendingReminder(ctx context.Context, clientID string) (*reminder.Reminder, error) {
	all, err := s.reminderRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders for client %s: %w", clientID, err)
	}
	for _, r := range all {
		if r.Status == reminder.StatusPending {
			return r, nil
		}
	}
	return nil, nil
}

// MarkSent records a delivered reminder. It returns reminder.ErrNotPending
// when the reminder was cancelled or sent in the meantime.
func (s *ReminderService) MarkSent(ctx context.Context, id string) error {
	if err := s.reminderRepo.MarkSent(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark reminder %s sent: %w", id, err)
	}
	return nil
}

func (s *ReminderService) newPending(userID, clientID string, scheduledAt time.Time) *reminder.Reminder {
	now := s.now().UTC()
	return &reminder.Reminder{
		ID:          uuid.NewString(),
		UserID:      userID,
		ClientID:    clientID,
		ScheduledAt: scheduledAt.UTC(),
		Status:      reminder.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func validateIDs(userID, clientID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", reminder.ErrInvalidInput)
	}
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", reminder.ErrInvalidInput)
	}
	return nil
}

func validateScheduledAt(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", reminder.ErrInvalidInput)
	}
	return nil
}
