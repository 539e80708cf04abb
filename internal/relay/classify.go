package relay

import (
	"psi09relay/internal/domain"

	"github.com/samber/lo"
)

// DefaultDMLabel is the group name used for direct messages.
const DefaultDMLabel = "Discord_DM"

// ClassifyContext returns the group_name label for msg. It never returns an
// empty string: missing names fall back to an id-based label.
func ClassifyContext(msg domain.InboundMessage, dmLabel string) string {
	conv := msg.Conversation
	switch conv.Kind {
	case domain.DirectMessage:
		return lo.CoalesceOrEmpty(dmLabel, DefaultDMLabel)
	case domain.GroupConversation:
		return lo.CoalesceOrEmpty(conv.Name, "GroupDM_"+conv.ID)
	default:
		if conv.ServerName != "" {
			return conv.ServerName
		}
		if conv.ServerID != "" {
			return "Server_" + conv.ServerID
		}
		return "Private_Channel_" + conv.ID
	}
}

// IsActive reports whether msg should get a visible reply attempt: direct
// messages always, other conversations only when the bot is mentioned.
func IsActive(msg domain.InboundMessage) bool {
	return msg.Conversation.Kind == domain.DirectMessage || msg.MentionsBot
}
