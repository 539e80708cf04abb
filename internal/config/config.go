package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned when a required token or URL is absent.
var ErrMissingCredential = errors.New("missing credential")

// Config is the root configuration for the relay.
type Config struct {
	General   GeneralConfig   `yaml:"general" json:"general"`
	Backend   BackendConfig   `yaml:"backend" json:"backend"`
	Relay     RelayConfig     `yaml:"relay" json:"relay"`
	Channels  ChannelsConfig  `yaml:"channels" json:"channels"`
	KeepAlive KeepAliveConfig `yaml:"keepAlive" json:"keepAlive"`
	Secrets   SecretsConfig   `yaml:"secrets" json:"secrets"`
}

type GeneralConfig struct {
	LogLevel  string `yaml:"logLevel" json:"logLevel"`   // debug | info | warn | error
	LogFormat string `yaml:"logFormat" json:"logFormat"` // text | json
}

type BackendConfig struct {
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" json:"timeoutSeconds"`
}

type RelayConfig struct {
	PassiveMode string            `yaml:"passiveMode" json:"passiveMode"` // relay | log
	DMLabels    map[string]string `yaml:"dmLabels,omitempty" json:"dmLabels,omitempty"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `yaml:"discord" json:"discord"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	Slack    SlackConfig    `yaml:"slack" json:"slack"`
}

type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token" json:"token"`
	Mode    string `yaml:"mode" json:"mode"`                           // bot | user
	GuildID string `yaml:"guildId,omitempty" json:"guildId,omitempty"` // optional: only relay this guild
}

type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Token     string   `yaml:"token" json:"token"`
	AllowFrom []string `yaml:"allowFrom,omitempty" json:"allowFrom,omitempty"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BotToken string `yaml:"botToken" json:"botToken"`
	AppToken string `yaml:"appToken" json:"appToken"` // Socket Mode
}

type KeepAliveConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Banner  string `yaml:"banner,omitempty" json:"banner,omitempty"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

// SecretsConfig configures resolution of gcpsm:// credential references.
type SecretsConfig struct {
	GCPProject string `yaml:"gcpProject,omitempty" json:"gcpProject,omitempty"`
}

// DefaultConfigDir returns ~/.psi09.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".psi09"
	}
	return filepath.Join(home, ".psi09")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the YAML file at path on top of Defaults. A missing file is not
// an error when allowMissing is set; the defaults are returned instead.
// Environment overrides are not applied here, see ApplyEnv.
func Load(path string, allowMissing bool) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the variable's value and ${VAR:-def}
// with def when VAR is unset or empty. Unknown variables without a default
// are left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		def, hasDefault := groups[2], strings.Contains(match, ":-")

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges and enums. Credentials are checked separately
// by CheckCredentials so that tooling commands work without them.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.Backend.TimeoutSeconds < 1 || cfg.Backend.TimeoutSeconds > 120 {
		errs = append(errs, "backend.timeoutSeconds must be between 1 and 120")
	}
	switch cfg.Relay.PassiveMode {
	case "relay", "log":
	default:
		errs = append(errs, "relay.passiveMode must be one of: relay, log")
	}
	switch cfg.Channels.Discord.Mode {
	case "bot", "user":
	default:
		errs = append(errs, "channels.discord.mode must be one of: bot, user")
	}
	if cfg.KeepAlive.Port < 0 || cfg.KeepAlive.Port > 65535 {
		errs = append(errs, "keepAlive.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CheckCredentials verifies the backend URL is set and at least one channel
// is enabled with its tokens. The error names the environment variable to set.
func CheckCredentials(cfg *Config) error {
	if cfg.Backend.URL == "" {
		return fmt.Errorf("%w: PSI09_API_URL not found in environment variables", ErrMissingCredential)
	}

	enabled := 0
	if d := cfg.Channels.Discord; d.Enabled {
		enabled++
		if d.Token == "" {
			return fmt.Errorf("%w: %s not found in environment variables", ErrMissingCredential, discordTokenVar(d.Mode))
		}
	}
	if tg := cfg.Channels.Telegram; tg.Enabled {
		enabled++
		if tg.Token == "" {
			return fmt.Errorf("%w: TELEGRAM_TOKEN not found in environment variables", ErrMissingCredential)
		}
	}
	if s := cfg.Channels.Slack; s.Enabled {
		enabled++
		if s.BotToken == "" || s.AppToken == "" {
			return fmt.Errorf("%w: SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required", ErrMissingCredential)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: BOT_TOKEN not found in environment variables", ErrMissingCredential)
	}
	return nil
}

func discordTokenVar(mode string) string {
	if mode == "user" {
		return "USER_TOKEN"
	}
	return "BOT_TOKEN"
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
