package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"psi09relay/internal/backend"
	"psi09relay/internal/bus"
	"psi09relay/internal/channel"
	"psi09relay/internal/config"
	"psi09relay/internal/domain"
	"psi09relay/internal/keepalive"
	"psi09relay/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay (chat clients + keep-alive server)",
		Long:  "Connects every enabled chat client, starts the keep-alive server and relays messages until interrupted.",
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		logger.Error("CRITICAL: cannot load configuration", "err", err)
		return err
	}
	logger = newLogger(cfg)

	if err := config.CheckCredentials(cfg); err != nil {
		logger.Error("CRITICAL: " + credentialMessage(err))
		return err
	}

	events := bus.NewEventBus(0, logger)
	client := backend.New(backend.Config{
		URL:     cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	engine := relay.NewEngine(relay.EngineConfig{
		Backend:     client,
		PassiveMode: relay.PassiveMode(cfg.Relay.PassiveMode),
		DMLabels:    cfg.Relay.DMLabels,
		Events:      events,
		Logger:      logger,
	})

	channels := buildChannels(cfg, engine)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.KeepAlive.Enabled {
		srv := keepalive.New(keepalive.Config{
			Host:    cfg.KeepAlive.Host,
			Port:    cfg.KeepAlive.Port,
			Banner:  cfg.Banner(),
			Metrics: cfg.KeepAlive.Metrics,
			Events:  events,
			Logger:  logger,
		})
		g.Go(func() error { return srv.Start(gctx) })
	}
	for _, ch := range channels {
		g.Go(func() error {
			logger.Info("channel starting", "channel", ch.Name())
			if err := ch.Start(gctx); err != nil {
				return fmt.Errorf("%s: %w", ch.Name(), err)
			}
			return nil
		})
	}

	logger.Info("relay started", "backend", client.URL(), "channels", len(channels), "passive_mode", cfg.Relay.PassiveMode)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case err := <-errCh:
		// A component failed before shutdown was requested.
		if err != nil {
			logger.Error("relay stopped", "err", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down relay...")
	select {
	case err := <-errCh:
		for _, ch := range channels {
			if stopErr := ch.Stop(); stopErr != nil {
				logger.Warn("channel stop", "channel", ch.Name(), "err", stopErr)
			}
		}
		logger.Info("shutdown complete")
		return err
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
}

// buildChannels returns a chat client for every enabled platform.
func buildChannels(cfg *config.Config, handler domain.MessageHandler) []domain.Channel {
	var channels []domain.Channel
	if d := cfg.Channels.Discord; d.Enabled {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:   d.Token,
			Mode:    d.Mode,
			GuildID: d.GuildID,
			Handler: handler,
			Logger:  logger,
		}))
	}
	if tg := cfg.Channels.Telegram; tg.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     tg.Token,
			AllowFrom: tg.AllowFrom,
			Handler:   handler,
			Logger:    logger,
		}))
	}
	if s := cfg.Channels.Slack; s.Enabled {
		channels = append(channels, channel.NewSlack(channel.SlackConfig{
			BotToken: s.BotToken,
			AppToken: s.AppToken,
			Handler:  handler,
			Logger:   logger,
		}))
	}
	return channels
}

// credentialMessage renders a missing-credential error the way operators
// expect to read it, e.g. "BOT_TOKEN not found in environment variables."
func credentialMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), config.ErrMissingCredential.Error()+": ")
	return msg + "."
}
