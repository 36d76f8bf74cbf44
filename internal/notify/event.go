// Package notify delivers timer state-change events to the owning user's
// logical channel. Delivery is fire-and-forget: a state mutation is
// authoritative whether or not anyone heard about it.
package notify

// EventType is the top-level kind of a push event, mirroring the wire
// contract consumed by the chat frontend.
type EventType string

const (
	TypeTimerUpdate    EventType = "timer_update"
	TypeTimerWarning   EventType = "timer_warning"
	TypeTimerCompleted EventType = "timer_completed"
)

// Action narrows a timer_update event to the state change that caused it.
type Action string

const (
	ActionCreated      Action = "created"
	ActionPaused       Action = "paused"
	ActionResumed      Action = "resumed"
	ActionCancelled    Action = "cancelled"
	ActionCancelledAll Action = "cancelled_all"
	ActionTick         Action = "tick"
	ActionWarning      Action = "warning"
	ActionCompleted    Action = "completed"
)

// Event is one notification for one owner.
type Event struct {
	Type          EventType `json:"type"`
	Action        Action    `json:"action"`
	TimerID       string    `json:"timer_id,omitempty"`
	TimerName     string    `json:"timer_name,omitempty"`
	Message       string    `json:"message"`
	TimeRemaining *int      `json:"time_remaining,omitempty"`
}

// Dispatcher publishes an event to the owner's channel. Implementations must
// not block on slow consumers.
type Dispatcher interface {
	Publish(ownerID string, event Event) error
}
