package relay

import (
	"testing"

	"psi09relay/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@123> hello", "hello"},
		{"hello <@!456>", "hello"},
		{"hey <@1> there", "hey there"},
		{"  plain text  ", "plain text"},
		{"<@123>", EmptyPlaceholder},
		{"<@123> <@!456>", EmptyPlaceholder},
		{"", EmptyPlaceholder},
		{"   \n\t ", EmptyPlaceholder},
		{"<@abc> not a mention", "<@abc> not a mention"},
		{"<@<@1>2>", "<@ 2>"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "<@1>", "a <@1> b", "<@<@1>1>", "<@!<@2>3>x", "[empty_mention]",
		"multi\n<@42>\nline", "<@1><@2><@3>", "text with <@!99999999999> inside",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
		assert.NotEmpty(t, once, "input %q", in)
	}
}

func TestBuildPayload(t *testing.T) {
	m := domain.InboundMessage{
		Text:              "<@42> what's up",
		AuthorDisplayName: "Bob",
	}
	p := BuildPayload(m, "PSI Lab")
	assert.Equal(t, domain.RelayPayload{Message: "what's up", Sender: "Bob", GroupName: "PSI Lab"}, p)
}

func TestBuildPayload_MissingSender(t *testing.T) {
	p := BuildPayload(domain.InboundMessage{Text: "hi", AuthorDisplayName: "  "}, "g")
	assert.Equal(t, "unknown", p.Sender)
}
