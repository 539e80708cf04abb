package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Backend: BackendConfig{
			TimeoutSeconds: 20,
		},
		Relay: RelayConfig{
			PassiveMode: "relay",
			DMLabels: map[string]string{
				"discord":  "Discord_DM",
				"telegram": "Telegram_DM",
				"slack":    "Slack_DM",
			},
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Mode: "bot",
			},
		},
		KeepAlive: KeepAliveConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    5000,
			Metrics: true,
		},
	}
}

// Banner returns the keep-alive response text, derived from the Discord
// mode unless set explicitly.
func (c *Config) Banner() string {
	if c.KeepAlive.Banner != "" {
		return c.KeepAlive.Banner
	}
	if c.Channels.Discord.Mode == "user" {
		return "PSI-09 Self-Bot Interface is Active"
	}
	return "PSI-09 Official Bot Interface is Active"
}
