package config

import (
	"context"
	"fmt"
	"strings"
)

// SecretRefPrefix marks a credential value stored in Google Cloud Secret Manager.
const SecretRefPrefix = "gcpsm://"

// SecretResolver fetches a secret value by reference (the part after gcpsm://).
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// IsSecretRef reports whether v is a gcpsm:// reference.
func IsSecretRef(v string) bool {
	return strings.HasPrefix(v, SecretRefPrefix)
}

func (c *Config) credentialFields() map[string]*string {
	return map[string]*string{
		"backend.url":             &c.Backend.URL,
		"channels.discord.token":  &c.Channels.Discord.Token,
		"channels.telegram.token": &c.Channels.Telegram.Token,
		"channels.slack.botToken": &c.Channels.Slack.BotToken,
		"channels.slack.appToken": &c.Channels.Slack.AppToken,
	}
}

// HasSecretRefs reports whether any credential needs resolving.
func (c *Config) HasSecretRefs() bool {
	for _, p := range c.credentialFields() {
		if IsSecretRef(*p) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every gcpsm:// credential in cfg with its value.
func ResolveSecrets(ctx context.Context, cfg *Config, r SecretResolver) error {
	for field, p := range cfg.credentialFields() {
		if !IsSecretRef(*p) {
			continue
		}
		val, err := r.Resolve(ctx, strings.TrimPrefix(*p, SecretRefPrefix))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", field, err)
		}
		*p = val
	}
	return nil
}
