package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// EnvOverrides are the environment variables the hosting platform sets.
// Empty values leave the file/default configuration untouched.
type EnvOverrides struct {
	BotToken      string `env:"BOT_TOKEN"`
	UserToken     string `env:"USER_TOKEN"`
	APIURL        string `env:"PSI09_API_URL"`
	Port          int    `env:"PORT"`
	LogLevel      string `env:"LOG_LEVEL"`
	LogFormat     string `env:"LOG_FORMAT"`
	PassiveMode   string `env:"PSI09_PASSIVE_MODE"`
	GuildID       string `env:"DISCORD_GUILD_ID"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	SlackBotToken string `env:"SLACK_BOT_TOKEN"`
	SlackAppToken string `env:"SLACK_APP_TOKEN"`
	GCPProject    string `env:"GCP_PROJECT"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. A missing
// file is ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ReadEnv parses EnvOverrides from the process environment.
func ReadEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return o, fmt.Errorf("parse environment: %w", err)
	}
	return o, nil
}

// ApplyEnv merges o into cfg. BOT_TOKEN enables Discord in bot mode;
// USER_TOKEN enables it in user (self-bot) mode and wins if both are set.
func ApplyEnv(cfg *Config, o EnvOverrides) {
	if o.BotToken != "" {
		cfg.Channels.Discord.Enabled = true
		cfg.Channels.Discord.Token = o.BotToken
		cfg.Channels.Discord.Mode = "bot"
	}
	if o.UserToken != "" {
		cfg.Channels.Discord.Enabled = true
		cfg.Channels.Discord.Token = o.UserToken
		cfg.Channels.Discord.Mode = "user"
	}
	if o.GuildID != "" {
		cfg.Channels.Discord.GuildID = o.GuildID
	}
	if o.APIURL != "" {
		cfg.Backend.URL = o.APIURL
	}
	if o.Port > 0 {
		cfg.KeepAlive.Port = o.Port
	}
	if o.LogLevel != "" {
		cfg.General.LogLevel = strings.ToLower(o.LogLevel)
	}
	if o.LogFormat != "" {
		cfg.General.LogFormat = strings.ToLower(o.LogFormat)
	}
	if o.PassiveMode != "" {
		cfg.Relay.PassiveMode = strings.ToLower(o.PassiveMode)
	}
	if o.TelegramToken != "" {
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = o.TelegramToken
	}
	if o.SlackBotToken != "" || o.SlackAppToken != "" {
		cfg.Channels.Slack.Enabled = true
		if o.SlackBotToken != "" {
			cfg.Channels.Slack.BotToken = o.SlackBotToken
		}
		if o.SlackAppToken != "" {
			cfg.Channels.Slack.AppToken = o.SlackAppToken
		}
	}
	if o.GCPProject != "" {
		cfg.Secrets.GCPProject = o.GCPProject
	}
}

// LoadAll is the startup path: .env files, config file (optional), env
// overrides, validation.
func LoadAll(path string, dotenvFiles ...string) (*Config, error) {
	if err := LoadDotEnv(dotenvFiles...); err != nil {
		return nil, err
	}
	cfg, err := Load(path, true)
	if err != nil {
		return nil, err
	}
	o, err := ReadEnv()
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, o)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}
