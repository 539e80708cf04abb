package main

import (
	"errors"
	"fmt"
	"time"

	"psi09relay/internal/backend"
	"psi09relay/internal/domain"
	"psi09relay/internal/relay"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		message string
		sender  string
		group   string
		url     string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Post one message to the backend and print the reply",
		Long: "Builds the same payload the relay would for a chat message and posts it to the backend.\n" +
			"Useful for checking a backend deployment without a chat client.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if url == "" {
				url = cfg.Backend.URL
			}
			if url == "" {
				return errors.New("no backend URL: set PSI09_API_URL or pass --url")
			}

			client := backend.New(backend.Config{
				URL:     url,
				Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
				Logger:  logger,
			})
			payload := cliPayload(message, sender, group)

			start := time.Now()
			resp, err := client.Relay(cmd.Context(), payload)
			if err != nil {
				return fmt.Errorf("relay failed (%s): %w", backend.Kind(err), err)
			}
			logger.Info("backend answered", "latency", time.Since(start).Round(time.Millisecond))
			if resp.Reply == "" {
				fmt.Println("(no reply)")
				return nil
			}
			fmt.Println(resp.Reply)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text (mention tokens are stripped)")
	cmd.Flags().StringVarP(&sender, "sender", "s", "psi09-cli", "sender display name")
	cmd.Flags().StringVarP(&group, "group", "g", relay.DefaultDMLabel, "group_name label")
	cmd.Flags().StringVar(&url, "url", "", "backend URL (default: backend.url / PSI09_API_URL)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// cliPayload runs a command-line message through the same payload builder
// the chat adapters use. An empty group gets the DM label.
func cliPayload(message, sender, group string) domain.RelayPayload {
	msg := domain.InboundMessage{
		Platform:          "cli",
		Text:              message,
		AuthorDisplayName: sender,
		Conversation:      domain.Conversation{Kind: domain.DirectMessage},
		ReceivedAt:        time.Now(),
	}
	if group == "" {
		group = relay.ClassifyContext(msg, relay.DefaultDMLabel)
	}
	return relay.BuildPayload(msg, group)
}
