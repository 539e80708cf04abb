package domain

import "time"

// ConversationKind tags where a message was posted.
type ConversationKind int

const (
	DirectMessage ConversationKind = iota
	GroupConversation
	ServerChannel
)

func (k ConversationKind) String() string {
	switch k {
	case DirectMessage:
		return "dm"
	case GroupConversation:
		return "group"
	case ServerChannel:
		return "server"
	default:
		return "unknown"
	}
}

// Conversation identifies the conversation a message belongs to. Which fields
// are meaningful depends on Kind: Name for group conversations, ServerID and
// ServerName for server channels. ID is always the platform channel/chat id.
type Conversation struct {
	Kind       ConversationKind
	ID         string
	Name       string
	ServerID   string
	ServerName string
}

// InboundMessage is one chat message as seen by the relay. It is built once
// per event by a chat adapter and discarded after handling.
type InboundMessage struct {
	ID                string
	Platform          string // discord | telegram | slack
	Text              string
	AuthorDisplayName string
	IsSelfAuthored    bool
	MentionsBot       bool
	Conversation      Conversation
	ReceivedAt        time.Time
}

// RelayPayload is the JSON body posted to the backend.
type RelayPayload struct {
	Message   string `json:"message" validate:"required"`
	Sender    string `json:"sender" validate:"required"`
	GroupName string `json:"group_name" validate:"required"`
}

// RelayResponse is the backend's reply. An empty Reply means nothing is sent back.
type RelayResponse struct {
	Reply string `json:"reply,omitempty"`
}
