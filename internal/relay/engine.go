// Package relay decides whether and how an inbound chat message is forwarded
// to the backend, and writes the backend's reply back to the conversation.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"psi09relay/internal/backend"
	"psi09relay/internal/bus"
	"psi09relay/internal/domain"
	"psi09relay/internal/metrics"

	"github.com/google/uuid"
)

// PassiveMode selects what happens to messages that are neither direct
// messages nor mentions.
type PassiveMode string

const (
	// PassiveRelay forwards passive chatter to the backend for context.
	PassiveRelay PassiveMode = "relay"
	// PassiveLog only logs passive chatter.
	PassiveLog PassiveMode = "log"
)

const replyPreviewLen = 50

// EngineConfig configures the relay engine.
type EngineConfig struct {
	Backend     domain.Backend
	PassiveMode PassiveMode
	// DMLabels maps a platform name to its direct-message group label.
	// Platforms without an entry use DefaultDMLabel.
	DMLabels map[string]string
	Events   *bus.EventBus
	Logger   *slog.Logger
}

// Engine implements domain.MessageHandler. It keeps no per-message state and
// is safe for concurrent use by the chat clients' dispatch goroutines.
type Engine struct {
	backend    domain.Backend
	passive    PassiveMode
	dmLabels   map[string]string
	events     *bus.EventBus
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.PassiveMode == "" {
		cfg.PassiveMode = PassiveRelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "relay")
	return &Engine{
		backend:    cfg.Backend,
		passive:    cfg.PassiveMode,
		dmLabels:   cfg.DMLabels,
		events:     cfg.Events,
		dispatcher: NewDispatcher(logger),
		logger:     logger,
	}
}

func (e *Engine) dmLabel(platform string) string {
	if l, ok := e.dmLabels[platform]; ok && l != "" {
		return l
	}
	return DefaultDMLabel
}

// Handle runs one message through classify, relay and reply. It never
// panics and never returns an error to the caller; the result is for
// logging and metrics.
func (e *Engine) Handle(ctx context.Context, msg domain.InboundMessage, conv domain.ConversationHandle) (res domain.RelayResult) {
	res.RelayID = uuid.NewString()
	log := e.logger.With("relay_id", res.RelayID, "platform", msg.Platform)

	defer func() {
		if r := recover(); r != nil {
			log.Error("relay handler panic", "panic", r)
			res.Outcome = domain.OutcomeErrored
			res.Err = fmt.Errorf("relay panic: %v", r)
		}
		e.finish(log, msg, res)
	}()

	e.emit(bus.EventMessageReceived, msg, res)

	if msg.IsSelfAuthored {
		res.Outcome = domain.OutcomeSuppressed
		return res
	}

	res.GroupName = ClassifyContext(msg, e.dmLabel(msg.Platform))
	res.Active = IsActive(msg)
	metrics.MessageReceived(msg.Platform, res.Active)

	log = log.With("sender", msg.AuthorDisplayName, "group", res.GroupName)
	if res.Active {
		log.Info("active message")
	} else {
		log.Info("passive chatter logged")
	}

	if !res.Active && e.passive == PassiveLog {
		res.Outcome = domain.OutcomeSuppressed
		return res
	}

	payload := BuildPayload(msg, res.GroupName)

	if res.Active && conv != nil {
		stop := conv.Typing(ctx)
		defer stop()
	}

	start := time.Now()
	resp, err := e.backend.Relay(ctx, payload)
	metrics.BackendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		e.logBackendError(log, err, res.Active)
		metrics.BackendError(backend.Kind(err))
		res.Outcome = domain.OutcomeErrored
		res.Err = err
		return res
	}

	if resp == nil || resp.Reply == "" {
		log.Debug("backend returned no reply")
		res.Outcome = domain.OutcomeNoReply
		return res
	}
	if conv == nil {
		res.Outcome = domain.OutcomeNoReply
		return res
	}

	log.Info("sending reply", "preview", preview(resp.Reply, replyPreviewLen))
	delivery, err := e.dispatcher.Dispatch(ctx, conv, resp.Reply)
	res.Fallback = delivery.Fallback
	if delivery.Fallback {
		metrics.ReplyFallbacks.Inc()
		e.emit(bus.EventReplyFallback, msg, res)
	}
	if err != nil {
		res.Outcome = domain.OutcomeErrored
		res.Err = err
		return res
	}
	res.Outcome = domain.OutcomeReplied
	return res
}

// logBackendError logs status errors at error level only for active
// messages; passive chatter routinely hits backends that ignore it.
// Transport failures are always logged.
func (e *Engine) logBackendError(log *slog.Logger, err error, active bool) {
	var se *backend.StatusError
	if errors.As(err, &se) {
		if active {
			log.Error("backend error", "status", se.StatusCode)
		} else {
			log.Debug("backend error on passive message", "status", se.StatusCode)
		}
		return
	}
	log.Error("relay error", "err", err)
}

func (e *Engine) finish(log *slog.Logger, msg domain.InboundMessage, res domain.RelayResult) {
	metrics.RelayOutcome(string(res.Outcome))
	var eventType string
	switch res.Outcome {
	case domain.OutcomeSuppressed:
		eventType = bus.EventMessageSuppressed
	case domain.OutcomeReplied:
		eventType = bus.EventMessageReplied
	case domain.OutcomeNoReply:
		eventType = bus.EventMessageNoReply
	default:
		eventType = bus.EventMessageErrored
	}
	e.emit(eventType, msg, res)
	log.Debug("relay finished", "outcome", res.Outcome, "fallback", res.Fallback)
}

func (e *Engine) emit(eventType string, msg domain.InboundMessage, res domain.RelayResult) {
	if e.events == nil {
		return
	}
	payload := map[string]any{
		"relay_id": res.RelayID,
		"platform": msg.Platform,
		"kind":     msg.Conversation.Kind.String(),
		"group":    res.GroupName,
		"active":   res.Active,
		"fallback": res.Fallback,
	}
	if res.Err != nil {
		payload["err"] = res.Err.Error()
	}
	e.events.Emit(bus.Event{Type: eventType, Source: "relay", Payload: payload})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
