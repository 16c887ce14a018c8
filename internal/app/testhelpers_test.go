package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/push"
	"crm_reminders/internal/domain/user"
	"crm_reminders/internal/infra/memory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by the service under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	service  *ReminderService
	clients  *ClientService
	userID   string
	clientID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := &fakeClock{now: baseTime}
	svc := NewReminderService(store.Reminders, store.Clients, store.Users, testLogger(), WithClock(clock.Now))

	ctx := context.Background()
	require.NoError(t, store.Users.Create(ctx, &user.User{ID: "user-1", Name: "Alice", IsActive: true}))
	require.NoError(t, store.Clients.Create(ctx, &client.Client{ID: "client-1", UserID: "user-1", Name: "Acme Corp"}))

	return &fixture{
		store:    store,
		clock:    clock,
		service:  svc,
		clients:  NewClientService(store.Clients, store.Users, svc, testLogger(), WithClock(clock.Now)),
		userID:   "user-1",
		clientID: "client-1",
	}
}

func (f *fixture) addClient(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.store.Clients.Create(context.Background(), &client.Client{ID: id, UserID: f.userID, Name: name}))
}

// recordingGateway records every notification and fails for the reminder
// ids listed in failFor.
type recordingGateway struct {
	mu      sync.Mutex
	sent    []push.Notification
	failFor map[string]error
}

func (g *recordingGateway) Send(_ context.Context, n push.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, n)
	if err, ok := g.failFor[n.ReminderID]; ok {
		return err
	}
	return nil
}

func (g *recordingGateway) Sent() []push.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]push.Notification, len(g.sent))
	copy(out, g.sent)
	return out
}
