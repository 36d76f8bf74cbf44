// Package monitor runs the background sweep that drives time-based timer
// transitions: completions, pre-completion warnings, and optional countdown
// ticks. It is the only writer path besides the timer service.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"meggy/backend/internal/model"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
)

const (
	DefaultInterval = 10 * time.Second

	// DefaultWarningThreshold is slightly over three minutes so a 10s sweep
	// cannot step over the boundary without firing the warning.
	DefaultWarningThreshold = 185 * time.Second
)

type Config struct {
	Interval         time.Duration
	WarningThreshold time.Duration
	TickEnabled      bool
}

type Monitor struct {
	repo       *repository.TimerRepository
	dispatcher notify.Dispatcher
	logger     *zap.Logger

	interval         time.Duration
	warningThreshold time.Duration
	tickEnabled      bool

	now func() time.Time
}

func New(repo *repository.TimerRepository, dispatcher notify.Dispatcher, logger *zap.Logger, cfg Config) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	return &Monitor{
		repo:             repo,
		dispatcher:       dispatcher,
		logger:           logger,
		interval:         cfg.Interval,
		warningThreshold: cfg.WarningThreshold,
		tickEnabled:      cfg.TickEnabled,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every interval until the context
// is cancelled. Sweeps never overlap: the next tick fires only after the
// current sweep returned, and a sweep in progress runs to completion even
// during shutdown. A failed sweep is logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("timer monitor started", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Sweep(ctx, m.now()); err != nil {
			m.logger.Error("timer sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			m.logger.Info("timer monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep scans every active timer system-wide and advances the ones that are
// due or inside the warning window. A failure on one timer never blocks the
// rest of the scan.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) error {
	timers, err := m.repo.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running timers: %w", err)
	}

	for i := range timers {
		timer := &timers[i]

		if m.tickEnabled {
			// Countdown ticks are a UI nicety; failures are swallowed.
			_ = m.dispatcher.Publish(timer.OwnerID, notify.Event{
				Type:    notify.TypeTimerUpdate,
				Action:  notify.ActionTick,
				TimerID: timer.ID,
				Message: fmt.Sprintf("Timer %q tick", timer.Name),
			})
		}

		remaining := timer.Remaining(now)
		if remaining <= 0 {
			m.completeTimer(ctx, timer, now)
			continue
		}

		if remaining <= int(m.warningThreshold.Seconds()) && !timer.WarningSent {
			m.warnTimer(ctx, timer, now, remaining)
		}
	}
	return nil
}

// completeTimer commits the completion through a conditional update, so a
// timer paused or cancelled since the sweep read it is left alone and the
// completed event fires at most once.
func (m *Monitor) completeTimer(ctx context.Context, timer *model.Timer, now time.Time) {
	won, err := m.repo.CompleteIfDue(ctx, timer.ID, now)
	if err != nil {
		m.logger.Error("failed to complete timer",
			zap.String("timer_id", timer.ID),
			zap.Error(err),
		)
		return
	}
	if !won {
		return
	}

	m.logger.Info("timer completed",
		zap.String("timer_id", timer.ID),
		zap.String("owner_id", timer.OwnerID),
		zap.String("name", timer.Name),
	)

	if err := m.dispatcher.Publish(timer.OwnerID, notify.Event{
		Type:      notify.TypeTimerCompleted,
		Action:    notify.ActionCompleted,
		TimerID:   timer.ID,
		TimerName: timer.Name,
		Message:   fmt.Sprintf("Timer %q has completed!", timer.Name),
	}); err != nil {
		m.logger.Error("failed to publish completion",
			zap.String("timer_id", timer.ID),
			zap.Error(err),
		)
	}
}

func (m *Monitor) warnTimer(ctx context.Context, timer *model.Timer, now time.Time, remaining int) {
	won, err := m.repo.MarkWarningSent(ctx, timer.ID, now)
	if err != nil {
		m.logger.Error("failed to mark warning sent",
			zap.String("timer_id", timer.ID),
			zap.Error(err),
		)
		return
	}
	if !won {
		return
	}

	m.logger.Info("timer warning",
		zap.String("timer_id", timer.ID),
		zap.String("owner_id", timer.OwnerID),
		zap.Int("remaining_seconds", remaining),
	)

	if err := m.dispatcher.Publish(timer.OwnerID, notify.Event{
		Type:          notify.TypeTimerWarning,
		Action:        notify.ActionWarning,
		TimerID:       timer.ID,
		TimerName:     timer.Name,
		Message:       fmt.Sprintf("Timer %q will complete in 3 minutes!", timer.Name),
		TimeRemaining: &remaining,
	}); err != nil {
		m.logger.Error("failed to publish warning",
			zap.String("timer_id", timer.ID),
			zap.Error(err),
		)
	}
}
