package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "meggy/backend/internal/errors"
	"meggy/backend/internal/model"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
)

// TimerService is the request-driven writer path for timers. The monitor is
// the only other writer; both go through status-guarded updates so neither
// can clobber the other.
type TimerService struct {
	repo       *repository.TimerRepository
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// TimerView is the API shape of a timer, with remaining time computed at
// render time.
type TimerView struct {
	model.Timer
	TimeRemaining        int    `json:"timeRemaining"`
	TimeRemainingDisplay string `json:"timeRemainingDisplay"`
}

func NewTimerService(repo *repository.TimerRepository, dispatcher notify.Dispatcher, logger *zap.Logger) *TimerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerService{repo: repo, dispatcher: dispatcher, logger: logger}
}

// Create validates, persists, and announces a new active timer. The name is
// optional and defaults to one derived from the duration.
func (s *TimerService) Create(ctx context.Context, ownerID string, durationSeconds int, name string) (*TimerView, *apperrors.APIError) {
	if durationSeconds <= 0 {
		return nil, apperrors.BadRequest("invalid_duration", "durationSeconds must be a positive number of seconds")
	}
	if durationSeconds > model.MaxDurationSeconds {
		return nil, apperrors.BadRequest("invalid_duration", "timer duration cannot exceed 24 hours (86400 seconds)")
	}

	name = strings.TrimSpace(name)
	if len(name) > model.MaxNameLength {
		return nil, apperrors.BadRequest("invalid_name", "name must be at most 200 characters")
	}
	if name == "" {
		name = model.DefaultName(durationSeconds)
	}

	now := time.Now().UTC()
	timer := model.Timer{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            name,
		DurationSeconds: durationSeconds,
		EndTime:         now.Add(time.Duration(durationSeconds) * time.Second),
		Status:          model.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, &timer); err != nil {
		return nil, apperrors.Internal("failed to create timer")
	}

	s.publish(ownerID, notify.Event{
		Type:      notify.TypeTimerUpdate,
		Action:    notify.ActionCreated,
		TimerID:   timer.ID,
		TimerName: timer.Name,
		Message:   fmt.Sprintf("Timer %q created", timer.Name),
	})

	view := s.toView(&timer, now)
	return &view, nil
}

// Pause freezes an active timer, snapshotting its remaining time.
func (s *TimerService) Pause(ctx context.Context, ownerID, timerID string) (*TimerView, *apperrors.APIError) {
	return s.transition(ctx, ownerID, timerID, notify.ActionPaused, func(timer *model.Timer, now time.Time) error {
		return timer.Pause(now)
	})
}

// Resume restarts a paused timer with a recomputed deadline.
func (s *TimerService) Resume(ctx context.Context, ownerID, timerID string) (*TimerView, *apperrors.APIError) {
	return s.transition(ctx, ownerID, timerID, notify.ActionResumed, func(timer *model.Timer, now time.Time) error {
		return timer.Resume(now)
	})
}

// Cancel ends an active or paused timer without completing it.
func (s *TimerService) Cancel(ctx context.Context, ownerID, timerID string) (*TimerView, *apperrors.APIError) {
	return s.transition(ctx, ownerID, timerID, notify.ActionCancelled, func(timer *model.Timer, now time.Time) error {
		return timer.Cancel(now)
	})
}

// CancelAll cancels every active and paused timer the owner has and returns
// the count. Zero eligible timers is a successful no-op.
func (s *TimerService) CancelAll(ctx context.Context, ownerID string) (int, *apperrors.APIError) {
	now := time.Now().UTC()
	count, err := s.repo.CancelAll(ctx, ownerID, now)
	if err != nil {
		return 0, apperrors.Internal("failed to cancel timers")
	}

	if count > 0 {
		plural := "s"
		if count == 1 {
			plural = ""
		}
		s.publish(ownerID, notify.Event{
			Type:    notify.TypeTimerUpdate,
			Action:  notify.ActionCancelledAll,
			Message: fmt.Sprintf("All timers cancelled (%d timer%s)", count, plural),
		})
	}
	return count, nil
}

// ListActive returns the owner's active and paused timers, newest first.
func (s *TimerService) ListActive(ctx context.Context, ownerID string) ([]TimerView, *apperrors.APIError) {
	timers, err := s.repo.ListActive(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Internal("failed to list timers")
	}

	now := time.Now().UTC()
	views := make([]TimerView, 0, len(timers))
	for i := range timers {
		views = append(views, s.toView(&timers[i], now))
	}
	return views, nil
}

// Get returns one timer scoped to its owner.
func (s *TimerService) Get(ctx context.Context, ownerID, timerID string) (*TimerView, *apperrors.APIError) {
	timer, err := s.repo.GetByID(ctx, ownerID, timerID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("timer_not_found", "timer not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get timer")
	}

	view := s.toView(timer, time.Now().UTC())
	return &view, nil
}

func (s *TimerService) transition(
	ctx context.Context,
	ownerID, timerID string,
	action notify.Action,
	apply func(*model.Timer, time.Time) error,
) (*TimerView, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	timer, err := s.repo.GetByIDTx(ctx, tx, ownerID, timerID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("timer_not_found", "timer not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get timer")
	}

	fromStatus := timer.Status
	if err := apply(timer, now); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil, apperrors.Conflict("invalid_transition", err.Error(), nil)
		}
		return nil, apperrors.Internal("failed to apply transition")
	}

	changed, err := s.repo.UpdateTx(ctx, tx, timer, fromStatus)
	if err != nil {
		return nil, apperrors.Internal("failed to update timer")
	}
	if !changed {
		return nil, apperrors.Conflict("invalid_transition", "timer changed concurrently", nil)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(ownerID, notify.Event{
		Type:      notify.TypeTimerUpdate,
		Action:    action,
		TimerID:   timer.ID,
		TimerName: timer.Name,
		Message:   fmt.Sprintf("Timer %q %s", timer.Name, action),
	})

	view := s.toView(timer, now)
	return &view, nil
}

// publish is best-effort: the state change is already committed and stands
// whether or not delivery works.
func (s *TimerService) publish(ownerID string, event notify.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ownerID, event); err != nil {
		s.logger.Error("failed to publish timer event",
			zap.String("owner_id", ownerID),
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
	}
}

func (s *TimerService) toView(timer *model.Timer, now time.Time) TimerView {
	return TimerView{
		Timer:                *timer,
		TimeRemaining:        timer.Remaining(now),
		TimeRemainingDisplay: timer.RemainingDisplay(now),
	}
}
