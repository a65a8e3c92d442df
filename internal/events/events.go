// Package events provides the in-process event bus the monitor uses to
// notify renderers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/models"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventRunView          EventType = "run_view"          // RunView changed
	EventRunState         EventType = "run_state"         // monitor started, finished, failed or was cancelled
	EventCurrentJob       EventType = "current_job"       // global poller sample
	EventHistoryRefreshed EventType = "history_refreshed" // history list reloaded
	EventLog              EventType = "log"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RunState is the monitor-side lifecycle of a Poll Loop. It is separate from
// the backend's RunStatus: a loop can stop without a terminal status.
type RunState string

const (
	StateStarted   RunState = "started"
	StateFinished  RunState = "finished"  // backend reported a terminal status
	StateFailed    RunState = "failed"    // a fetch failed; status left as last known
	StateCancelled RunState = "cancelled" // superseded or torn down
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// RunViewEvent carries a snapshot of the monitored run.
type RunViewEvent struct {
	BaseEvent
	Generation uint64
	View       *models.RunView
}

// RunStateEvent reports a Poll Loop lifecycle transition.
type RunStateEvent struct {
	BaseEvent
	Generation uint64
	JobID      string
	State      RunState
	Status     models.RunStatus
	Err        error
}

// CurrentJobEvent is published by the global poller on every tick.
type CurrentJobEvent struct {
	BaseEvent
	Job models.CurrentJob
}

// HistoryRefreshedEvent is published after the history list reloads.
type HistoryRefreshedEvent struct {
	BaseEvent
	Entries []models.HistoryEntry
	Err     error
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	JobID   string
	Error   error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events that
// do not fit a subscriber's buffer are dropped and counted. A nil bus
// ignores the call.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishRunView publishes a RunView snapshot.
func (eb *EventBus) PublishRunView(generation uint64, view *models.RunView) {
	eb.Publish(&RunViewEvent{
		BaseEvent:  newBase(EventRunView),
		Generation: generation,
		View:       view,
	})
}

// PublishRunState publishes a Poll Loop lifecycle transition.
func (eb *EventBus) PublishRunState(generation uint64, jobID string, state RunState, status models.RunStatus, err error) {
	eb.Publish(&RunStateEvent{
		BaseEvent:  newBase(EventRunState),
		Generation: generation,
		JobID:      jobID,
		State:      state,
		Status:     status,
		Err:        err,
	})
}

// PublishCurrentJob publishes a global poller sample.
func (eb *EventBus) PublishCurrentJob(job models.CurrentJob) {
	eb.Publish(&CurrentJobEvent{BaseEvent: newBase(EventCurrentJob), Job: job})
}

// PublishHistory publishes a history reload result.
func (eb *EventBus) PublishHistory(entries []models.HistoryEntry, err error) {
	eb.Publish(&HistoryRefreshedEvent{
		BaseEvent: newBase(EventHistoryRefreshed),
		Entries:   entries,
		Err:       err,
	})
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, jobID string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: newBase(EventLog),
		Level:     level,
		Message:   message,
		JobID:     jobID,
		Error:     err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			// Remove channel by replacing with last element and truncating
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
