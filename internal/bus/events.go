package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const defaultHistory = 500

// Event is an internal notification about a handled message.
type Event struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type namedHandler struct {
	ID      string
	Handler EventHandler
}

// EventBus is a topic pub/sub with wildcard subscriptions and a bounded
// history used by the /events endpoint.
type EventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	seq        int
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

// NewEventBus creates an EventBus keeping up to maxHistory events.
// A non-positive maxHistory uses the default.
func NewEventBus(maxHistory int, logger *slog.Logger) *EventBus {
	if maxHistory <= 0 {
		maxHistory = defaultHistory
	}
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// On registers a handler for eventType ("*" matches all) and returns an id for Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.seq++
	id := eventType + "-" + strconv.Itoa(eb.seq)
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by id.
func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit records the event and calls matching handlers synchronously.
// A panicking handler is logged and does not affect the others.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	if len(eb.history) >= eb.maxHistory {
		eb.history = eb.history[1:]
	}
	eb.history = append(eb.history, event)

	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		eb.dispatch(h, event)
	}
}

func (eb *EventBus) dispatch(nh namedHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
		}
	}()
	nh.Handler(event)
}

// Replay returns recorded events of eventType ("*" for all) at or after since.
func (eb *EventBus) Replay(eventType string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []Event
	for _, e := range eb.history {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == "*" || e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// HistoryLen returns the number of events currently retained.
func (eb *EventBus) HistoryLen() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.history)
}

const (
	EventMessageReceived   = "relay.received"
	EventMessageSuppressed = "relay.suppressed"
	EventMessageReplied    = "relay.replied"
	EventMessageNoReply    = "relay.no_reply"
	EventMessageErrored    = "relay.errored"
	EventReplyFallback     = "reply.fallback"
)
