package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientService_CreateWithFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	followUp := baseTime.Add(24 * time.Hour)

	c, err := f.clients.CreateClient(ctx, f.userID, "Umbrella", &followUp)
	require.NoError(t, err)
	assert.True(t, c.NextFollowUpAt.Valid)

	all, err := f.store.Reminders.ListByClient(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, reminder.StatusPending, all[0].Status)
	assert.True(t, all[0].ScheduledAt.Equal(followUp))
}

func TestClientService_CreateWithoutFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.clients.CreateClient(ctx, f.userID, "Hooli", nil)
	require.NoError(t, err)

	all, err := f.store.Reminders.ListByClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.clients.CreateClient(ctx, "ghost", "Nobody Ltd", nil)
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = f.clients.CreateClient(ctx, f.userID, " ", nil)
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)
}

func TestClientService_UpdateFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := baseTime.Add(time.Hour)
	second := baseTime.Add(3 * time.Hour)

	c, err := f.clients.CreateClient(ctx, f.userID, "Stark", &first)
	require.NoError(t, err)

	// Same date: nothing changes.
	_, err = f.clients.UpdateClient(ctx, c.ID, "Stark Industries", &first)
	require.NoError(t, err)
	all, err := f.store.Reminders.ListByClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// New date supersedes.
	updated, err := f.clients.UpdateClient(ctx, c.ID, "", &second)
	require.NoError(t, err)
	assert.Equal(t, "Stark Industries", updated.Name)
	all, err = f.store.Reminders.ListByClient(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, reminder.StatusCancelled, all[0].Status)
	assert.Equal(t, reminder.StatusPending, all[1].Status)
	assert.True(t, all[1].ScheduledAt.Equal(second))

	// Cleared date cancels.
	_, err = f.clients.UpdateClient(ctx, c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, pendingCount(t, f, c.ID))
}

func TestClientService_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	followUp := baseTime.Add(time.Hour)

	c, err := f.clients.CreateClient(ctx, f.userID, "Wayne", &followUp)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		next := followUp.Add(time.Duration(i+1) * time.Hour)
		_, err = f.clients.UpdateClient(ctx, c.ID, "", &next)
		require.NoError(t, err)
	}

	require.NoError(t, f.clients.DeleteClient(ctx, c.ID))

	_, err = f.store.Clients.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, 0, pendingCount(t, f, c.ID))

	n, err := f.service.GetPendingReminderCount(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, f.clients.DeleteClient(ctx, c.ID), client.ErrNotFound)
}

type flakyClients struct {
	client.Repository
	created   []string
	updateErr error
	deleteErr error
}

func (r *flakyClients) Create(ctx context.Context, c *client.Client) error {
	r.created = append(r.created, c.ID)
	return r.Repository.Create(ctx, c)
}

func (r *flakyClients) Update(ctx context.Context, c *client.Client) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.Repository.Update(ctx, c)
}

func (r *flakyClients) Delete(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Repository.Delete(ctx, id)
}

type flakyReminders struct {
	reminder.Repository
	replaceErr error
}

func (r *flakyReminders) ReplacePending(ctx context.Context, rem *reminder.Reminder) (int64, error) {
	if r.replaceErr != nil {
		return 0, r.replaceErr
	}
	return r.Repository.ReplacePending(ctx, rem)
}

func newClientServiceWith(f *fixture, cr client.Repository, rr reminder.Repository) *ClientService {
	svc := NewReminderService(rr, f.store.Clients, f.store.Users, testLogger(), WithClock(f.clock.Now))
	return NewClientService(cr, f.store.Users, svc, testLogger(), WithClock(f.clock.Now))
}

func onlyPending(t *testing.T, f *fixture, clientID string) *reminder.Reminder {
	t.Helper()
	all, err := f.store.Reminders.ListByClient(context.Background(), clientID)
	require.NoError(t, err)
	var found *reminder.Reminder
	for _, r := range all {
		if r.Status == reminder.StatusPending {
			require.Nil(t, found, "more than one pending reminder")
			found = r
		}
	}
	return found
}

func TestClientService_UpdateRejectsZeroFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := baseTime.Add(time.Hour)

	c, err := f.clients.CreateClient(ctx, f.userID, "Soylent", &first)
	require.NoError(t, err)

	_, err = f.clients.UpdateClient(ctx, c.ID, "Soylent Green", &time.Time{})
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)

	stored, err := f.store.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soylent", stored.Name)
	assert.True(t, stored.NextFollowUpAt.Time.Equal(first))

	pending := onlyPending(t, f, c.ID)
	require.NotNil(t, pending)
	assert.True(t, pending.ScheduledAt.Equal(first))
}

func TestClientService_UpdateRestoresReminderWhenSaveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := baseTime.Add(time.Hour)
	second := baseTime.Add(5 * time.Hour)

	clients := &flakyClients{Repository: f.store.Clients}
	svc := newClientServiceWith(f, clients, f.store.Reminders)

	c, err := svc.CreateClient(ctx, f.userID, "Tyrell", &first)
	require.NoError(t, err)

	clients.updateErr = errors.New("connection reset")

	tests := []struct {
		name     string
		followUp *time.Time
	}{
		{name: "new date", followUp: &second},
		{name: "cleared date", followUp: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateClient(ctx, c.ID, "Tyrell Corp", tt.followUp)
			assert.ErrorIs(t, err, clients.updateErr)

			stored, err := f.store.Clients.GetByID(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "Tyrell", stored.Name)
			assert.True(t, stored.NextFollowUpAt.Time.Equal(first))

			pending := onlyPending(t, f, c.ID)
			require.NotNil(t, pending, "previous follow-up is still scheduled")
			assert.True(t, pending.ScheduledAt.Equal(first))
		})
	}
}

func TestClientService_UpdateKeepsClientWhenReminderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	followUp := baseTime.Add(time.Hour)

	reminders := &flakyReminders{Repository: f.store.Reminders}
	svc := newClientServiceWith(f, f.store.Clients, reminders)

	c, err := svc.CreateClient(ctx, f.userID, "Cyberdyne", nil)
	require.NoError(t, err)

	reminders.replaceErr = errors.New("deadlock detected")
	_, err = svc.UpdateClient(ctx, c.ID, "Cyberdyne Systems", &followUp)
	assert.ErrorIs(t, err, reminders.replaceErr)

	stored, err := f.store.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cyberdyne", stored.Name)
	assert.False(t, stored.NextFollowUpAt.Valid)
	assert.Nil(t, onlyPending(t, f, c.ID))
}

func TestClientService_CreateRollsBackOnReminderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	followUp := baseTime.Add(time.Hour)

	clients := &flakyClients{Repository: f.store.Clients}
	reminders := &flakyReminders{Repository: f.store.Reminders, replaceErr: errors.New("deadlock detected")}
	svc := newClientServiceWith(f, clients, reminders)

	c, err := svc.CreateClient(ctx, f.userID, "Massive Dynamic", &followUp)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, reminders.replaceErr)

	require.Len(t, clients.created, 1)
	_, err = f.store.Clients.GetByID(ctx, clients.created[0])
	assert.ErrorIs(t, err, client.ErrNotFound, "client is removed again")

	// A zero follow-up is rejected before anything is written.
	_, err = svc.CreateClient(ctx, f.userID, "Massive Dynamic", &time.Time{})
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)
	assert.Len(t, clients.created, 1)
}

func TestClientService_DeleteFailureKeepsReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	followUp := baseTime.Add(time.Hour)

	clients := &flakyClients{Repository: f.store.Clients}
	svc := newClientServiceWith(f, clients, f.store.Reminders)

	c, err := svc.CreateClient(ctx, f.userID, "Oscorp", &followUp)
	require.NoError(t, err)

	clients.deleteErr = errors.New("statement timeout")
	assert.ErrorIs(t, svc.DeleteClient(ctx, c.ID), clients.deleteErr)

	_, err = f.store.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	pending := onlyPending(t, f, c.ID)
	require.NotNil(t, pending)
	assert.True(t, pending.ScheduledAt.Equal(followUp))
}
