package domain

import "context"

// Backend forwards a payload to the remote service and returns its response.
type Backend interface {
	Relay(ctx context.Context, payload RelayPayload) (*RelayResponse, error)
}

// MessageHandler handles one inbound message. Implementations must not
// return errors to the caller; every failure is local to the message.
type MessageHandler interface {
	Handle(ctx context.Context, msg InboundMessage, conv ConversationHandle) RelayResult
}

// RelayOutcome is the terminal state of a handled message.
type RelayOutcome string

const (
	OutcomeSuppressed RelayOutcome = "suppressed"
	OutcomeReplied    RelayOutcome = "replied"
	OutcomeNoReply    RelayOutcome = "no_reply"
	OutcomeErrored    RelayOutcome = "errored"
)

// RelayResult summarizes how a message was handled. Err is kept for logging
// and metrics only.
type RelayResult struct {
	RelayID   string
	Outcome   RelayOutcome
	Active    bool
	GroupName string
	Fallback  bool
	Err       error
}
