package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected valid defaults, got: %v", err)
	}
}

func TestValidate_PassiveMode(t *testing.T) {
	for _, mode := range []string{"relay", "log"} {
		cfg := Defaults()
		cfg.Relay.PassiveMode = mode
		if err := Validate(cfg); err != nil {
			t.Fatalf("passiveMode %q should be valid: %v", mode, err)
		}
	}
	cfg := Defaults()
	cfg.Relay.PassiveMode = "silent"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown passiveMode")
	}
}

func TestValidate_Timeout(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.TimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for timeoutSeconds=0")
	}
	cfg.Backend.TimeoutSeconds = 121
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for timeoutSeconds=121")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.Channels.Discord.Mode = "selfbot"
	cfg.KeepAlive.Port = 70000
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"general.logLevel", "channels.discord.mode", "keepAlive.port"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s: %v", field, err)
		}
	}
}

// --- Credentials ---

func TestCheckCredentials_MissingBotToken(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.URL = "http://backend"
	err := CheckCredentials(cfg)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "BOT_TOKEN") {
		t.Errorf("error should name BOT_TOKEN: %v", err)
	}
}

func TestCheckCredentials_UserModeNamesUserToken(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.URL = "http://backend"
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Mode = "user"
	err := CheckCredentials(cfg)
	if err == nil || !strings.Contains(err.Error(), "USER_TOKEN") {
		t.Fatalf("expected USER_TOKEN error, got %v", err)
	}
}

func TestCheckCredentials_MissingBackendURL(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Token = "tok"
	err := CheckCredentials(cfg)
	if !errors.Is(err, ErrMissingCredential) || !strings.Contains(err.Error(), "PSI09_API_URL") {
		t.Fatalf("expected PSI09_API_URL error, got %v", err)
	}
}

func TestCheckCredentials_OK(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.URL = "http://backend"
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"
	if err := CheckCredentials(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- Load / Save ---

func TestLoad_MissingFileAllowed(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.TimeoutSeconds != 20 {
		t.Errorf("expected default timeout 20, got %d", cfg.Backend.TimeoutSeconds)
	}
}

func TestLoad_MissingFileRejected(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Backend.URL = "https://psi09.example/api"
	original.Relay.PassiveMode = "log"
	original.Channels.Telegram.AllowFrom = []string{"42"}

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Backend.URL != original.Backend.URL {
		t.Errorf("url mismatch: %s", loaded.Backend.URL)
	}
	if loaded.Relay.PassiveMode != "log" {
		t.Errorf("passiveMode mismatch: %s", loaded.Relay.PassiveMode)
	}
	if len(loaded.Channels.Telegram.AllowFrom) != 1 {
		t.Errorf("allowFrom mismatch: %v", loaded.Channels.Telegram.AllowFrom)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("PSI09_TEST_URL", "https://from-env/relay")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "backend:\n  url: ${PSI09_TEST_URL}\n  timeoutSeconds: ${PSI09_TEST_TIMEOUT:-15}\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "https://from-env/relay" {
		t.Errorf("unexpected url %q", cfg.Backend.URL)
	}
	if cfg.Backend.TimeoutSeconds != 15 {
		t.Errorf("expected default 15, got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Relay.PassiveMode != "relay" {
		t.Errorf("unset fields should keep defaults, got %q", cfg.Relay.PassiveMode)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PSI09_SET", "value")
	t.Setenv("PSI09_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${PSI09_SET}", "value"},
		{"${PSI09_EMPTY:-fallback}", "fallback"},
		{"${PSI09_UNSET_VAR}", "${PSI09_UNSET_VAR}"},
		{"${PSI09_UNSET_VAR:-}", ""},
		{"a-${PSI09_SET}-b", "a-value-b"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Environment ---

func TestApplyEnv_BotToken(t *testing.T) {
	cfg := Defaults()
	ApplyEnv(cfg, EnvOverrides{BotToken: "bot-tok", APIURL: "http://b", Port: 8080})

	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Mode != "bot" || cfg.Channels.Discord.Token != "bot-tok" {
		t.Errorf("discord not configured from BOT_TOKEN: %+v", cfg.Channels.Discord)
	}
	if cfg.Backend.URL != "http://b" || cfg.KeepAlive.Port != 8080 {
		t.Errorf("backend/port not applied: %s %d", cfg.Backend.URL, cfg.KeepAlive.Port)
	}
}

func TestApplyEnv_UserTokenWins(t *testing.T) {
	cfg := Defaults()
	ApplyEnv(cfg, EnvOverrides{BotToken: "bot", UserToken: "user"})

	if cfg.Channels.Discord.Mode != "user" || cfg.Channels.Discord.Token != "user" {
		t.Errorf("expected user mode, got %+v", cfg.Channels.Discord)
	}
	if cfg.Banner() != "PSI-09 Self-Bot Interface is Active" {
		t.Errorf("unexpected banner %q", cfg.Banner())
	}
}

func TestApplyEnv_EmptyLeavesConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.URL = "http://file"
	ApplyEnv(cfg, EnvOverrides{})
	if cfg.Backend.URL != "http://file" || cfg.Channels.Discord.Enabled {
		t.Errorf("empty overrides changed config: %+v", cfg)
	}
}

func TestReadEnv(t *testing.T) {
	t.Setenv("PSI09_API_URL", "http://env-backend")
	t.Setenv("PSI09_PASSIVE_MODE", "LOG")
	t.Setenv("PORT", "7000")

	o, err := ReadEnv()
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	cfg := Defaults()
	ApplyEnv(cfg, o)
	if cfg.Backend.URL != "http://env-backend" || cfg.Relay.PassiveMode != "log" || cfg.KeepAlive.Port != 7000 {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadAll_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PSI09_API_URL=http://dotenv\nBOT_TOKEN=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registered so t.Setenv restores (unsets) them after godotenv sets them.
	t.Setenv("PSI09_API_URL", "")
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("PSI09_API_URL")
	os.Unsetenv("BOT_TOKEN")

	cfg, err := LoadAll(filepath.Join(dir, "missing.yaml"), envFile)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if cfg.Backend.URL != "http://dotenv" || cfg.Channels.Discord.Token != "from-dotenv" {
		t.Errorf("dotenv not applied: %+v", cfg)
	}
	if err := CheckCredentials(cfg); err != nil {
		t.Errorf("credentials should be complete: %v", err)
	}
}

// --- Secrets ---

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord.Token = "gcpsm://discord-token"
	cfg.Backend.URL = "http://plain"

	if !cfg.HasSecretRefs() {
		t.Fatal("expected secret refs")
	}
	if err := ResolveSecrets(context.Background(), cfg, mapResolver{"discord-token": "real"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Channels.Discord.Token != "real" || cfg.Backend.URL != "http://plain" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.HasSecretRefs() {
		t.Error("refs should be resolved")
	}
}

func TestResolveSecrets_Error(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Slack.AppToken = "gcpsm://missing"
	err := ResolveSecrets(context.Background(), cfg, mapResolver{})
	if err == nil || !strings.Contains(err.Error(), "channels.slack.appToken") {
		t.Fatalf("expected field in error, got %v", err)
	}
}

// --- Accessor / Sanitize ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "relay.passiveMode")
	if err != nil {
		t.Fatal(err)
	}
	if val != "relay" {
		t.Errorf("expected relay, got %v", val)
	}
	if _, err := GetByPath(cfg, "relay.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
	val, err = GetByPath(cfg, "relay.dmLabels.discord")
	if err != nil || val != "Discord_DM" {
		t.Errorf("expected Discord_DM, got %v (%v)", val, err)
	}
}

func TestSanitize_MasksTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord.Token = "abcdefghijklmnop"
	cfg.Channels.Slack.BotToken = "short"
	cfg.Channels.Telegram.Token = "gcpsm://tg"
	cfg.Backend.URL = "http://backend"

	s := Sanitize(cfg)
	if s.Channels.Discord.Token != "abcd****mnop" {
		t.Errorf("unexpected mask %q", s.Channels.Discord.Token)
	}
	if s.Channels.Slack.BotToken != "***" {
		t.Errorf("unexpected mask %q", s.Channels.Slack.BotToken)
	}
	if s.Channels.Telegram.Token != "gcpsm://tg" {
		t.Errorf("secret refs should be shown, got %q", s.Channels.Telegram.Token)
	}
	if s.Backend.URL != "http://backend" {
		t.Errorf("url should not be masked")
	}
	if cfg.Channels.Discord.Token != "abcdefghijklmnop" {
		t.Error("Sanitize must not modify the original")
	}
}
