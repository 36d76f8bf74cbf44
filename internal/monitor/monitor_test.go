package monitor

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"meggy/backend/internal/db"
	"meggy/backend/internal/model"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
)

type fixture struct {
	database *sql.DB
	timers   *repository.TimerRepository
	hub      *notify.Hub
	ownerID  string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(database, migrationsDir))

	users := repository.NewUserRepository(database)
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        "owner@example.com",
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, users.Create(context.Background(), &user))

	return &fixture{
		database: database,
		timers:   repository.NewTimerRepository(database),
		hub:      notify.NewHub(nil),
		ownerID:  user.ID,
	}
}

func (f *fixture) monitor(cfg Config) *Monitor {
	return New(f.timers, f.hub, nil, cfg)
}

func (f *fixture) addTimer(t *testing.T, status string, endTime time.Time, warningSent bool) *model.Timer {
	t.Helper()
	now := time.Now().UTC()
	timer := model.Timer{
		ID:              uuid.NewString(),
		OwnerID:         f.ownerID,
		Name:            "Test Timer",
		DurationSeconds: 300,
		EndTime:         endTime,
		Status:          status,
		WarningSent:     warningSent,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == model.StatusPaused {
		remaining := 100
		timer.RemainingSeconds = &remaining
	}
	require.NoError(t, f.timers.Create(context.Background(), &timer))
	return &timer
}

func drainEvents(events <-chan notify.Event) []notify.Event {
	var collected []notify.Event
	for {
		select {
		case event := <-events:
			collected = append(collected, event)
		default:
			return collected
		}
	}
}

func TestSweepCompletesDueTimerOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	timer := f.addTimer(t, model.StatusActive, now.Add(-time.Minute), false)

	events, cancel := f.hub.Subscribe(f.ownerID)
	defer cancel()

	m := f.monitor(Config{})
	require.NoError(t, m.Sweep(ctx, now))

	got, err := f.timers.GetByID(ctx, f.ownerID, timer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 0, got.Remaining(now))

	collected := drainEvents(events)
	require.Len(t, collected, 1)
	assert.Equal(t, notify.TypeTimerCompleted, collected[0].Type)
	assert.Equal(t, timer.ID, collected[0].TimerID)

	// A second sweep over the now-completed record is a no-op.
	require.NoError(t, m.Sweep(ctx, now.Add(10*time.Second)))
	assert.Empty(t, drainEvents(events))
}

func TestSweepWarnsExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	timer := f.addTimer(t, model.StatusActive, now.Add(100*time.Second), false)

	events, cancel := f.hub.Subscribe(f.ownerID)
	defer cancel()

	m := f.monitor(Config{})
	require.NoError(t, m.Sweep(ctx, now))

	collected := drainEvents(events)
	require.Len(t, collected, 1)
	assert.Equal(t, notify.TypeTimerWarning, collected[0].Type)
	require.NotNil(t, collected[0].TimeRemaining)
	assert.Equal(t, 100, *collected[0].TimeRemaining)

	got, err := f.timers.GetByID(ctx, f.ownerID, timer.ID)
	require.NoError(t, err)
	assert.True(t, got.WarningSent)
	assert.Equal(t, model.StatusActive, got.Status)

	// Warning never re-fires, no matter how many sweeps pass.
	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Sweep(ctx, now.Add(time.Duration(i)*10*time.Second)))
	}
	assert.Empty(t, drainEvents(events))
}

func TestSweepAboveThresholdDoesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.addTimer(t, model.StatusActive, now.Add(10*time.Minute), false)

	events, cancel := f.hub.Subscribe(f.ownerID)
	defer cancel()

	m := f.monitor(Config{})
	require.NoError(t, m.Sweep(ctx, now))
	assert.Empty(t, drainEvents(events))
}

func TestSweepIgnoresPausedTimers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	timer := f.addTimer(t, model.StatusPaused, now.Add(-time.Hour), false)

	m := f.monitor(Config{})
	require.NoError(t, m.Sweep(ctx, now))

	got, err := f.timers.GetByID(ctx, f.ownerID, timer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, got.Status, "paused timers never auto-complete")
}

func TestSweepTickEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	timer := f.addTimer(t, model.StatusActive, now.Add(10*time.Minute), false)

	events, cancel := f.hub.Subscribe(f.ownerID)
	defer cancel()

	m := f.monitor(Config{TickEnabled: true})
	require.NoError(t, m.Sweep(ctx, now))

	collected := drainEvents(events)
	require.Len(t, collected, 1)
	assert.Equal(t, notify.ActionTick, collected[0].Action)
	assert.Equal(t, timer.ID, collected[0].TimerID)
}

func TestFiveMinuteTimerLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := time.Now().UTC()

	// Warning flag pre-set so the scenario isolates the completion path.
	timer := f.addTimer(t, model.StatusActive, start.Add(300*time.Second), true)
	assert.Equal(t, 300, timer.Remaining(start))

	m := f.monitor(Config{})

	// 250s in: still active, 50s left, nothing to do.
	require.NoError(t, m.Sweep(ctx, start.Add(250*time.Second)))
	got, err := f.timers.GetByID(ctx, f.ownerID, timer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 50, got.Remaining(start.Add(250*time.Second)))

	// 301s in: due, flips to completed.
	require.NoError(t, m.Sweep(ctx, start.Add(301*time.Second)))
	got, err = f.timers.GetByID(ctx, f.ownerID, timer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 0, got.Remaining(start.Add(301*time.Second)))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(database, migrationsDir))

	m := New(repository.NewTimerRepository(database), notify.NewHub(nil), nil, Config{
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}

	require.NoError(t, database.Close())
}
