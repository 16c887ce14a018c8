package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm_reminders/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type processorFunc func(ctx context.Context) (app.CycleSummary, error)

func (f processorFunc) ProcessDueReminders(ctx context.Context) (app.CycleSummary, error) {
	return f(ctx)
}

func TestTick_RunsCycle(t *testing.T) {
	var calls atomic.Int32
	p := processorFunc(func(ctx context.Context) (app.CycleSummary, error) {
		calls.Add(1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "cycle runs under a timeout")
		return app.CycleSummary{Processed: 2, Failed: 1, Total: 3}, nil
	})
	s := NewReminderScheduler(p, Config{CronSpec: "@every 1h", CycleTimeout: time.Second}, testLogger())

	summary, ran := s.Tick(context.Background())
	assert.True(t, ran)
	assert.Equal(t, app.CycleSummary{Processed: 2, Failed: 1, Total: 3}, summary)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.IsBusy())
}

func TestTick_DropsOverlappingTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	p := processorFunc(func(ctx context.Context) (app.CycleSummary, error) {
		calls.Add(1)
		close(entered)
		<-release
		return app.CycleSummary{}, nil
	})
	s := NewReminderScheduler(p, Config{CronSpec: "@every 1h"}, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran := s.Tick(context.Background())
		assert.True(t, ran)
	}()

	<-entered
	assert.True(t, s.IsBusy())

	_, ran := s.Tick(context.Background())
	assert.False(t, ran, "tick during a cycle must be dropped")

	close(release)
	<-done

	assert.False(t, s.IsBusy())
	assert.Equal(t, int32(1), calls.Load())
}

func TestTick_ReleasesBusyFlagOnErrorAndPanic(t *testing.T) {
	tests := []struct {
		name string
		p    processorFunc
	}{
		{
			name: "cycle error",
			p: func(context.Context) (app.CycleSummary, error) {
				return app.CycleSummary{}, &app.CycleError{Op: "fetch due reminders", Err: errors.New("db down")}
			},
		},
		{
			name: "plain error",
			p: func(context.Context) (app.CycleSummary, error) {
				return app.CycleSummary{}, errors.New("unexpected")
			},
		},
		{
			name: "panic",
			p: func(context.Context) (app.CycleSummary, error) {
				panic("nil map write")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewReminderScheduler(tt.p, Config{CronSpec: "@every 1h"}, testLogger())

			assert.NotPanics(t, func() {
				_, ran := s.Tick(context.Background())
				assert.True(t, ran)
			})
			assert.False(t, s.IsBusy())

			// Next tick proceeds normally.
			_, ran := s.Tick(context.Background())
			assert.True(t, ran)
		})
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.unlocked++
	}, true, nil
}

func TestTick_CycleLock(t *testing.T) {
	var calls atomic.Int32
	p := processorFunc(func(context.Context) (app.CycleSummary, error) {
		calls.Add(1)
		return app.CycleSummary{}, nil
	})

	locker := &fakeLocker{}
	s := NewReminderScheduler(p, Config{CronSpec: "@every 1h", Locker: locker}, testLogger())

	_, ran := s.Tick(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 1, locker.unlocked)

	locker.held = true // another replica
	_, ran = s.Tick(context.Background())
	assert.False(t, ran)

	locker.held = false
	locker.err = errors.New("redis unreachable")
	_, ran = s.Tick(context.Background())
	assert.False(t, ran)

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.IsBusy())
}

func TestStartStop(t *testing.T) {
	p := processorFunc(func(context.Context) (app.CycleSummary, error) { return app.CycleSummary{}, nil })
	s := NewReminderScheduler(p, Config{CronSpec: "@every 1h"}, testLogger())

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	first := s.cronEngine
	require.NoError(t, s.Start(), "second Start is a no-op")
	assert.Same(t, first, s.cronEngine, "no second timer")
	assert.Len(t, s.cronEngine.Entries(), 1)

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not complete")
	}
	assert.False(t, s.IsRunning())

	// Stop on a stopped scheduler is harmless, and it can be restarted.
	<-s.Stop().Done()
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	<-s.Stop().Done()
}

func TestStart_InvalidSpec(t *testing.T) {
	p := processorFunc(func(context.Context) (app.CycleSummary, error) { return app.CycleSummary{}, nil })
	s := NewReminderScheduler(p, Config{CronSpec: "not a cron spec"}, testLogger())

	require.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestCronTriggersCycles(t *testing.T) {
	ran := make(chan struct{}, 1)
	p := processorFunc(func(context.Context) (app.CycleSummary, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return app.CycleSummary{}, nil
	})
	s := NewReminderScheduler(p, Config{CronSpec: "@every 1s"}, testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("cron did not trigger a cycle")
	}
}
