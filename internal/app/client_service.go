package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/domain/user"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientService keeps clients and their follow-up reminders in step. Every
// change to a client's follow-up date goes through the reminder service.
type ClientService struct {
	clientRepo client.Repository
	userRepo   user.Repository
	reminders  *ReminderService
	logger     *logrus.Entry
	now        func() time.Time
}

func NewClientService(cr client.Repository, ur user.Repository, reminders *ReminderService, logger *logrus.Entry, opts ...Option) *ClientService {
	o := buildOptions(opts)
	return &ClientService{
		clientRepo: cr,
		userRepo:   ur,
		reminders:  reminders,
		logger:     logger.WithField("component", "client_service"),
		now:        o.now,
	}
}

// CreateClient adds a client for userID and schedules its first reminder
// when followUp is set. If the reminder cannot be scheduled the client is
// removed again.
func (s *ClientService) CreateClient(ctx context.Context, userID, name string, followUp *time.Time) (*client.Client, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", reminder.ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: client name is required", reminder.ErrInvalidInput)
	}
	if err := validateFollowUp(followUp); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	now := s.now().UTC()
	c := &client.Client{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           name,
		NextFollowUpAt: toNullTime(followUp),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.clientRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create client in repository: %w", err)
	}

	if followUp != nil {
		if _, err := s.reminders.UpdateReminder(ctx, c.ID, *followUp); err != nil {
			if derr := s.clientRepo.Delete(ctx, c.ID); derr != nil {
				s.logger.WithError(derr).WithField("client_id", c.ID).Error("Failed to remove client after reminder scheduling failed")
			}
			return nil, fmt.Errorf("failed to schedule reminder for new client %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// UpdateClient renames the client and applies its follow-up date: a new date
// supersedes the pending reminder, nil clears it. The reminder is written
// first; if saving the client then fails, the previous pending reminder is
// put back.
func (s *ClientService) UpdateClient(ctx context.Context, clientID, name string, followUp *time.Time) (*client.Client, error) {
	if err := validateFollowUp(followUp); err != nil {
		return nil, err
	}
	c, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client %s: %w", clientID, err)
	}

	before, err := s.reminders.PendingReminder(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	prev := c.NextFollowUpAt
	changed := false
	switch {
	case followUp == nil && prev.Valid:
		if err := s.reminders.CancelRemindersByClient(ctx, c.ID); err != nil {
			return nil, err
		}
		changed = true
	case followUp != nil && (!prev.Valid || !prev.Time.Equal(followUp.UTC())):
		if _, err := s.reminders.UpdateReminder(ctx, c.ID, *followUp); err != nil {
			return nil, err
		}
		changed = true
	}

	updated := *c
	if strings.TrimSpace(name) != "" {
		updated.Name = name
	}
	updated.NextFollowUpAt = toNullTime(followUp)
	updated.UpdatedAt = s.now().UTC()

	if err := s.clientRepo.Update(ctx, &updated); err != nil {
		if changed {
			s.restorePending(ctx, c.ID, before)
		}
		return nil, fmt.Errorf("failed to update client in repository: %w", err)
	}
	return &updated, nil
}

// DeleteClient removes the client, then cancels whatever reminders the store
// did not cascade. A failed delete leaves client and reminders untouched.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", reminder.ErrInvalidInput)
	}
	if err := s.clientRepo.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete client %s: %w", clientID, err)
	}
	if err := s.reminders.CancelRemindersByClient(ctx, clientID); err != nil {
		// The dispatcher cancels reminders of missing clients on its next pass.
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to cancel reminders of deleted client")
	}
	s.logger.WithField("client_id", clientID).Info("Client deleted")
	return nil
}

// restorePending puts the client's reminder state back to before, which is
// the pending reminder seen before the change or nil for none.
func (s *ClientService) restorePending(ctx context.Context, clientID string, before *reminder.Reminder) {
	var err error
	if before != nil {
		_, err = s.reminders.UpdateReminder(ctx, clientID, before.ScheduledAt)
	} else {
		err = s.reminders.CancelRemindersByClient(ctx, clientID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Error("Failed to restore reminder after client update failed")
	}
}

func validateFollowUp(t *time.Time) error {
	if t == nil {
		return nil
	}
	return validateScheduledAt(*t)
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
