package relay

import (
	"testing"

	"psi09relay/internal/domain"

	"github.com/stretchr/testify/assert"
)

func msgIn(kind domain.ConversationKind, mod func(*domain.InboundMessage)) domain.InboundMessage {
	m := domain.InboundMessage{
		Platform:          "discord",
		Text:              "hello",
		AuthorDisplayName: "alice",
		Conversation:      domain.Conversation{Kind: kind, ID: "123"},
	}
	if mod != nil {
		mod(&m)
	}
	return m
}

func TestClassifyContext(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.InboundMessage
		want string
	}{
		{"dm", msgIn(domain.DirectMessage, nil), "Discord_DM"},
		{"dm ignores names", msgIn(domain.DirectMessage, func(m *domain.InboundMessage) {
			m.Conversation.Name = "whatever"
		}), "Discord_DM"},
		{"named group", msgIn(domain.GroupConversation, func(m *domain.InboundMessage) {
			m.Conversation.Name = "Night Owls"
		}), "Night Owls"},
		{"unnamed group", msgIn(domain.GroupConversation, nil), "GroupDM_123"},
		{"server with name", msgIn(domain.ServerChannel, func(m *domain.InboundMessage) {
			m.Conversation.ServerID = "999"
			m.Conversation.ServerName = "PSI Lab"
		}), "PSI Lab"},
		{"server without name", msgIn(domain.ServerChannel, func(m *domain.InboundMessage) {
			m.Conversation.ServerID = "999"
		}), "Server_999"},
		{"channel without server", msgIn(domain.ServerChannel, nil), "Private_Channel_123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContext(tt.msg, DefaultDMLabel))
		})
	}
}

func TestClassifyContext_CustomDMLabel(t *testing.T) {
	assert.Equal(t, "Telegram_DM", ClassifyContext(msgIn(domain.DirectMessage, nil), "Telegram_DM"))
	assert.Equal(t, DefaultDMLabel, ClassifyContext(msgIn(domain.DirectMessage, nil), ""))
}

func TestClassifyContext_Deterministic(t *testing.T) {
	m := msgIn(domain.GroupConversation, nil)
	assert.Equal(t, ClassifyContext(m, ""), ClassifyContext(m, ""))
}

func TestIsActive_DirectMessageAlwaysActive(t *testing.T) {
	for _, mentioned := range []bool{true, false} {
		m := msgIn(domain.DirectMessage, func(m *domain.InboundMessage) { m.MentionsBot = mentioned })
		assert.True(t, IsActive(m), "mentioned=%v", mentioned)
	}
}

func TestIsActive_MentionAlwaysActive(t *testing.T) {
	for _, kind := range []domain.ConversationKind{domain.DirectMessage, domain.GroupConversation, domain.ServerChannel} {
		m := msgIn(kind, func(m *domain.InboundMessage) { m.MentionsBot = true })
		assert.True(t, IsActive(m), "kind=%s", kind)
	}
}

func TestIsActive_PassiveChatter(t *testing.T) {
	assert.False(t, IsActive(msgIn(domain.GroupConversation, nil)))
	assert.False(t, IsActive(msgIn(domain.ServerChannel, nil)))
}
