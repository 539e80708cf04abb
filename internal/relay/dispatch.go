package relay

import (
	"context"
	"fmt"
	"log/slog"

	"psi09relay/internal/domain"
)

// DeliveryError means neither the referenced nor the plain send went through.
type DeliveryError struct {
	ReplyErr error
	SendErr  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reply: referenced send: %v; plain send: %v", e.ReplyErr, e.SendErr)
}

func (e *DeliveryError) Unwrap() error { return e.SendErr }

// Delivery reports how a reply reached the conversation.
type Delivery struct {
	Fallback     bool  // the plain send was used
	ReferenceErr error // why the referenced send failed, when Fallback
}

// Dispatcher writes backend replies back into the originating conversation.
type Dispatcher struct {
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Dispatch sends reply as a referenced response and, if that fails, makes
// exactly one plain send. An empty reply sends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, conv domain.ConversationHandle, reply string) (Delivery, error) {
	if reply == "" {
		return Delivery{}, nil
	}

	refErr := conv.Reply(ctx, reply)
	if refErr == nil {
		return Delivery{}, nil
	}
	d.logger.Warn("referenced reply failed, sending plain message", "err", refErr)

	if err := conv.Send(ctx, reply); err != nil {
		d.logger.Error("plain send failed", "err", err)
		return Delivery{Fallback: true, ReferenceErr: refErr}, &DeliveryError{ReplyErr: refErr, SendErr: err}
	}
	return Delivery{Fallback: true, ReferenceErr: refErr}, nil
}
