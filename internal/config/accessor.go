package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dot-notation path such as
// "channels.discord.mode", using the JSON field names.
func GetByPath(cfg *Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var current any
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, err
	}

	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// Sanitize returns a copy of cfg with tokens masked, for display.
// Secret references are shown as written.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	if cfg.Relay.DMLabels != nil {
		cp.Relay.DMLabels = make(map[string]string, len(cfg.Relay.DMLabels))
		for k, v := range cfg.Relay.DMLabels {
			cp.Relay.DMLabels[k] = v
		}
	}
	cp.Channels.Telegram.AllowFrom = append([]string(nil), cfg.Channels.Telegram.AllowFrom...)

	for _, p := range cp.credentialFields() {
		if p == &cp.Backend.URL {
			continue
		}
		*p = maskString(*p)
	}
	return &cp
}

// maskString keeps the first and last 4 characters of long values.
func maskString(s string) string {
	switch {
	case s == "" || IsSecretRef(s):
		return s
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
