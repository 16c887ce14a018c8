// Package memory holds in-process repositories used for local runs
// (STORE_DRIVER=memory) and tests. All three repositories share one lock so
// that cross-entity operations behave like a single transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crm_reminders/internal/domain/client"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/domain/user"
)

type Store struct {
	mu        sync.Mutex
	users     map[string]*user.User
	clients   map[string]*client.Client
	reminders map[string]*reminder.Reminder
	seq       int64 // insertion order, breaks ScheduledAt ties

	order map[string]int64

	Users     *UserRepository
	Clients   *ClientRepository
	Reminders *ReminderRepository
}

func New() *Store {
	s := &Store{
		users:     make(map[string]*user.User),
		clients:   make(map[string]*client.Client),
		reminders: make(map[string]*reminder.Reminder),
		order:     make(map[string]int64),
	}
	s.Users = &UserRepository{s: s}
	s.Clients = &ClientRepository{s: s}
	s.Reminders = &ReminderRepository{s: s}
	return s
}

// --- Users ---

type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByTelegramChatID(_ context.Context, chatID int64) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.TelegramChatID.Valid && u.TelegramChatID.Int64 == chatID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

// --- Clients ---

type ClientRepository struct{ s *Store }

func (r *ClientRepository) Create(_ context.Context, c *client.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	r.s.clients[c.ID] = &cp
	return nil
}

func (r *ClientRepository) GetByID(_ context.Context, id string) (*client.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ClientRepository) Update(_ context.Context, c *client.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[c.ID]; !ok {
		return client.ErrNotFound
	}
	cp := *c
	r.s.clients[c.ID] = &cp
	return nil
}

// Delete removes the client and, like the ON DELETE CASCADE foreign key in
// Postgres, every reminder referencing it.
func (r *ClientRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[id]; !ok {
		return client.ErrNotFound
	}
	delete(r.s.clients, id)
	for rid, rem := range r.s.reminders {
		if rem.ClientID == id {
			delete(r.s.reminders, rid)
			delete(r.s.order, rid)
		}
	}
	return nil
}

// --- Reminders ---

type ReminderRepository struct{ s *Store }

func (r *ReminderRepository) Create(_ context.Context, rem *reminder.Reminder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rem.Status == reminder.StatusPending && r.s.hasPendingLocked(rem.ClientID) {
		return reminder.ErrPendingExists
	}
	r.s.insertLocked(rem)
	return nil
}

func (r *ReminderRepository) ReplacePending(_ context.Context, rem *reminder.Reminder) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[rem.ClientID]; !ok {
		return 0, client.ErrNotFound
	}
	n := r.s.cancelPendingLocked(rem.ClientID, rem.CreatedAt)
	r.s.insertLocked(rem)
	return n, nil
}

func (r *ReminderRepository) CancelPendingByClient(_ context.Context, clientID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.cancelPendingLocked(clientID, at), nil
}

func (r *ReminderRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	due := make([]*reminder.Reminder, 0)
	for _, rem := range r.s.reminders {
		if rem.IsDue(now) {
			cp := *rem
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return r.s.order[due[i].ID] < r.s.order[due[j].ID]
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *ReminderRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return reminder.ErrNotFound
	}
	if rem.Status != reminder.StatusPending {
		return reminder.ErrNotPending
	}
	rem.Status = reminder.StatusSent
	rem.UpdatedAt = at
	return nil
}

func (r *ReminderRepository) CountPendingByUser(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, rem := range r.s.reminders {
		if rem.UserID == userID && rem.Status == reminder.StatusPending {
			n++
		}
	}
	return n, nil
}

func (r *ReminderRepository) GetByID(_ context.Context, id string) (*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return nil, reminder.ErrNotFound
	}
	cp := *rem
	return &cp, nil
}

func (r *ReminderRepository) ListByClient(_ context.Context, clientID string) ([]*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*reminder.Reminder, 0)
	for _, rem := range r.s.reminders {
		if rem.ClientID == clientID {
			cp := *rem
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (s *Store) hasPendingLocked(clientID string) bool {
	for _, rem := range s.reminders {
		if rem.ClientID == clientID && rem.Status == reminder.StatusPending {
			return true
		}
	}
	return false
}

func (s *Store) cancelPendingLocked(clientID string, at time.Time) int64 {
	var n int64
	for _, rem := range s.reminders {
		if rem.ClientID == clientID && rem.Status == reminder.StatusPending {
			rem.Status = reminder.StatusCancelled
			rem.UpdatedAt = at
			n++
		}
	}
	return n
}

func (s *Store) insertLocked(rem *reminder.Reminder) {
	cp := *rem
	s.reminders[rem.ID] = &cp
	s.seq++
	s.order[rem.ID] = s.seq
}
