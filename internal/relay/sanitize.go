package relay

import (
	"regexp"
	"strings"

	"psi09relay/internal/domain"
)

// EmptyPlaceholder replaces a message that is empty once mentions are removed.
const EmptyPlaceholder = "[empty_mention]"

const unknownSender = "unknown"

var mentionToken = regexp.MustCompile(`\s*<@!?\d+>\s*`)

// Sanitize strips user mention tokens (<@123>, <@!123>) and the whitespace
// around them, then trims. The result is never empty and Sanitize(Sanitize(s))
// equals Sanitize(s).
func Sanitize(text string) string {
	for {
		next := mentionToken.ReplaceAllString(text, " ")
		if next == text {
			break
		}
		text = next
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return EmptyPlaceholder
	}
	return text
}

// BuildPayload derives the backend payload for msg.
func BuildPayload(msg domain.InboundMessage, groupName string) domain.RelayPayload {
	sender := strings.TrimSpace(msg.AuthorDisplayName)
	if sender == "" {
		sender = unknownSender
	}
	return domain.RelayPayload{
		Message:   Sanitize(msg.Text),
		Sender:    sender,
		GroupName: groupName,
	}
}
