package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	// MaxDurationSeconds caps a timer at 24 hours.
	MaxDurationSeconds = 86400

	// MaxNameLength matches the persisted column width.
	MaxNameLength = 200
)

// ErrInvalidTransition is returned when a state change is not legal from the
// timer's current status. Match with errors.Is; the concrete error names the
// offending status.
var ErrInvalidTransition = errors.New("invalid timer transition")

// TransitionError reports a rejected state change. It leaves the timer
// untouched.
type TransitionError struct {
	Op     string
	Status string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s timer in %s status", e.Op, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Timer is one countdown owned by a single user.
//
// EndTime is meaningful only while the timer is active; RemainingSeconds and
// PausedAt only while it is paused. Completed and cancelled are terminal.
type Timer struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	Name             string     `json:"name"`
	DurationSeconds  int        `json:"durationSeconds"`
	EndTime          time.Time  `json:"endTime"`
	Status           string     `json:"status"`
	PausedAt         *time.Time `json:"pausedAt,omitempty"`
	RemainingSeconds *int       `json:"remainingSeconds,omitempty"`
	WarningSent      bool       `json:"warningSent"`
	CompletionSent   bool       `json:"completionNotified"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether no further transitions are accepted.
func (t *Timer) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// Pause snapshots the remaining time and freezes the timer. Legal only from
// active.
func (t *Timer) Pause(now time.Time) error {
	if t.Status != StatusActive {
		return &TransitionError{Op: "pause", Status: t.Status}
	}
	remaining := t.Remaining(now)
	t.Status = StatusPaused
	t.RemainingSeconds = &remaining
	pausedAt := now
	t.PausedAt = &pausedAt
	t.UpdatedAt = now
	return nil
}

// Resume recomputes the deadline from the paused snapshot. Legal only from
// paused.
func (t *Timer) Resume(now time.Time) error {
	if t.Status != StatusPaused {
		return &TransitionError{Op: "resume", Status: t.Status}
	}
	remaining := 0
	if t.RemainingSeconds != nil {
		remaining = *t.RemainingSeconds
	}
	t.Status = StatusActive
	t.EndTime = now.Add(time.Duration(remaining) * time.Second)
	t.PausedAt = nil
	t.RemainingSeconds = nil
	t.UpdatedAt = now
	return nil
}

// Cancel is legal from active or paused; time fields are left as they are.
func (t *Timer) Cancel(now time.Time) error {
	if t.IsTerminal() {
		return &TransitionError{Op: "cancel", Status: t.Status}
	}
	t.Status = StatusCancelled
	t.UpdatedAt = now
	return nil
}

// Complete marks a due timer finished. Paused timers never auto-complete, so
// this is legal only from active.
func (t *Timer) Complete(now time.Time) error {
	if t.Status != StatusActive {
		return &TransitionError{Op: "complete", Status: t.Status}
	}
	t.Status = StatusCompleted
	t.UpdatedAt = now
	return nil
}

// Remaining returns whole seconds left at the given instant, never negative.
// Paused timers report their frozen snapshot; terminal timers report zero.
func (t *Timer) Remaining(now time.Time) int {
	switch t.Status {
	case StatusCompleted, StatusCancelled:
		return 0
	case StatusPaused:
		if t.RemainingSeconds == nil || *t.RemainingSeconds < 0 {
			return 0
		}
		return *t.RemainingSeconds
	default:
		remaining := int(t.EndTime.Sub(now).Seconds())
		if remaining < 0 {
			return 0
		}
		return remaining
	}
}

// RemainingDisplay renders the remaining time as "1h 5m 20s", dropping
// leading zero units.
func (t *Timer) RemainingDisplay(now time.Time) string {
	return FormatSeconds(t.Remaining(now))
}

// FormatSeconds renders a second count for countdown UIs.
func FormatSeconds(seconds int) string {
	if seconds <= 0 {
		return "Done!"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// DefaultName builds the auto-generated display name for a timer created
// without one, e.g. "5 minute timer".
func DefaultName(durationSeconds int) string {
	if durationSeconds >= 60 && durationSeconds%60 == 0 {
		minutes := durationSeconds / 60
		if minutes == 1 {
			return "1 minute timer"
		}
		return fmt.Sprintf("%d minute timer", minutes)
	}
	return fmt.Sprintf("%d second timer", durationSeconds)
}
