package domain

import "context"

// Channel is a chat platform adapter (Discord, Telegram, Slack).
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// ConversationHandle is bound to the message being handled and writes back
// into the conversation it came from.
type ConversationHandle interface {
	// Reply sends text as a referenced (quoted/threaded) response to the
	// originating message.
	Reply(ctx context.Context, text string) error
	// Send posts text into the conversation without a reference.
	Send(ctx context.Context, text string) error
	// Typing shows a typing indicator until the returned stop func is called.
	Typing(ctx context.Context) (stop func())
}
