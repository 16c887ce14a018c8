// internal/app/dispatch_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/push"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// CycleSummary reports the outcome of one processing cycle.
// Processed + Failed == Total. Superseded is the part of Processed whose
// notification went out but whose reminder was cancelled before it could be
// marked sent.
type CycleSummary struct {
	Processed  int
	Failed     int
	Total      int
	Superseded int
}

// DispatchError is a single reminder that could not be delivered or
// recorded. The reminder stays pending and is retried on a later cycle.
type DispatchError struct {
	ReminderID string
	ClientID   string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch reminder %s (client %s): %v", e.ReminderID, e.ClientID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// CycleError is a failure of the cycle itself, e.g. the due query failing.
// It aborts the current cycle only.
type CycleError struct {
	Op  string
	Err error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reminder cycle: %s: %v", e.Op, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

type DispatcherConfig struct {
	BatchLimit      int
	DispatchTimeout time.Duration
	BaseURL         string // Prefix for client deep links, may be empty
}

// ReminderDispatcher runs processing cycles: it fetches due reminders and
// hands each one to the notification gateway, in scheduled order.
type ReminderDispatcher struct {
	reminders  *ReminderService
	clientRepo client.Repository
	gateway    push.Gateway
	cfg        DispatcherConfig
	logger     *logrus.Entry
}

func NewReminderDispatcher(
	reminders *ReminderService,
	cr client.Repository,
	gw push.Gateway,
	cfg DispatcherConfig,
	logger *logrus.Entry,
) *ReminderDispatcher {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultDueLimit
	}
	return &ReminderDispatcher{
		reminders:  reminders,
		clientRepo: cr,
		gateway:    gw,
		cfg:        cfg,
		logger:     logger.WithField("component", "reminder_dispatcher"),
	}
}

// ProcessDueReminders runs one cycle. Per-item failures are counted in the
// summary and never abort the batch; only a failure to fetch the batch is
// returned, as a *CycleError.
func (d *ReminderDispatcher) ProcessDueReminders(ctx context.Context) (CycleSummary, error) {
	var summary CycleSummary

	due, err := d.reminders.GetDueReminders(ctx, d.cfg.BatchLimit)
	if err != nil {
		return summary, &CycleError{Op: "fetch due reminders", Err: err}
	}

	for _, r := range due {
		if ctx.Err() != nil {
			d.logger.WithError(ctx.Err()).Warn("Cycle context done, leaving remaining reminders for the next cycle")
			break
		}
		summary.Total++
		superseded, err := d.dispatchOne(ctx, r)
		if err != nil {
			summary.Failed++
			metrics.RemindersFailed.Inc()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"reminder_id": r.ID,
				"client_id":   r.ClientID,
			}).Error("Failed to dispatch reminder")
			continue
		}
		summary.Processed++
		if superseded {
			summary.Superseded++
		}
		metrics.RemindersSent.Inc()
	}

	if summary.Total > 0 {
		d.logger.WithFields(logrus.Fields{
			"processed":  summary.Processed,
			"failed":     summary.Failed,
			"total":      summary.Total,
			"superseded": summary.Superseded,
		}).Info("Reminder cycle finished")
	}
	return summary, nil
}

// dispatchOne sends r and marks it sent. superseded reports a reminder that
// was cancelled while its notification was in flight.
func (d *ReminderDispatcher) dispatchOne(ctx context.Context, r *reminder.Reminder) (superseded bool, err error) {
	c, err := d.clientRepo.GetByID(ctx, r.ClientID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			// Orphaned by a delete that bypassed the client service.
			if cerr := d.reminders.CancelRemindersByClient(ctx, r.ClientID); cerr != nil {
				d.logger.WithError(cerr).WithField("client_id", r.ClientID).Error("Failed to cancel orphaned reminders")
			}
		}
		return false, &DispatchError{ReminderID: r.ID, ClientID: r.ClientID, Err: err}
	}

	n := d.buildNotification(r, c)

	sendCtx := ctx
	if d.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.DispatchTimeout)
		defer cancel()
	}
	if err := d.gateway.Send(sendCtx, n); err != nil {
		return false, &DispatchError{ReminderID: r.ID, ClientID: r.ClientID, Err: err}
	}

	if err := d.reminders.MarkSent(ctx, r.ID); err != nil {
		if errors.Is(err, reminder.ErrNotPending) {
			// The cancelled state stays; the notification did go out.
			d.logger.WithField("reminder_id", r.ID).Warn("Reminder left pending state during dispatch")
			return true, nil
		}
		return false, &DispatchError{ReminderID: r.ID, ClientID: r.ClientID, Err: err}
	}
	r.Status = reminder.StatusSent
	return false, nil
}

func (d *ReminderDispatcher) buildNotification(r *reminder.Reminder, c *client.Client) push.Notification {
	return push.Notification{
		ReminderID: r.ID,
		UserID:     r.UserID,
		Title:      "Follow-up reminder",
		Body:       fmt.Sprintf("Time to follow up with %s", c.Name),
		Data: push.Data{
			ClientID:   c.ID,
			ClientName: c.Name,
			Action:     push.ActionOpenClient,
			Link:       ClientLink(d.cfg.BaseURL, c.ID),
		},
	}
}

// ClientLink is the deep link to a client's detail view.
func ClientLink(baseURL, clientID string) string {
	return strings.TrimRight(baseURL, "/") + "/clients/" + clientID
}
