package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"psi09relay/internal/backend"
	"psi09relay/internal/config"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your relay setup",
		Long: `Verifies that the configuration, credentials, backend and keep-alive
port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("PSI-09 Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, warned, failed := 0, 0, 0

			// 1. Config file (optional: env-only deployments are normal)
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (using defaults + environment)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				return summarize(passed, warned, failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Credentials
			if err := config.CheckCredentials(cfg); err != nil {
				printFail("Credentials", credentialMessage(err))
				failed++
			} else {
				printPass("Credentials", enabledChannels(cfg))
				passed++
			}

			// 4. Backend reachable
			if cfg.Backend.URL != "" {
				client := backend.New(backend.Config{URL: cfg.Backend.URL, Timeout: 5 * time.Second, Logger: logger})
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				status, err := client.Ping(ctx)
				cancel()
				switch {
				case err != nil:
					printFail("Backend", fmt.Sprintf("%s unreachable: %v", cfg.Backend.URL, err))
					failed++
				case status >= 500:
					printWarn("Backend", fmt.Sprintf("%s answered HTTP %d", cfg.Backend.URL, status))
					warned++
				default:
					printPass("Backend", fmt.Sprintf("%s reachable (HTTP %d)", cfg.Backend.URL, status))
					passed++
				}
			}

			// 5. Keep-alive port
			if cfg.KeepAlive.Enabled {
				if err := checkPort(cfg.KeepAlive.Host, cfg.KeepAlive.Port); err != nil {
					printWarn("Keep-alive port", fmt.Sprintf("port %d may be in use: %v", cfg.KeepAlive.Port, err))
					warned++
				} else {
					printPass("Keep-alive port", fmt.Sprintf(":%d available", cfg.KeepAlive.Port))
					passed++
				}
			} else {
				printWarn("Keep-alive", "disabled; hosting platforms may idle the process")
				warned++
			}

			return summarize(passed, warned, failed)
		},
	}
}

func summarize(passed, warned, failed int) error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %s passed, %s warnings, %s failed\n",
		color.Green.Sprint(passed), color.Yellow.Sprint(warned), color.Red.Sprint(failed))
	if failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running the relay.\n")
		return fmt.Errorf("%d check(s) failed", failed)
	}
	if warned > 0 {
		fmt.Printf("\nThe relay should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! Run 'psi09 run' to start relaying.\n")
	}
	return nil
}

func enabledChannels(cfg *config.Config) string {
	var names []string
	if cfg.Channels.Discord.Enabled {
		names = append(names, "discord ("+cfg.Channels.Discord.Mode+")")
	}
	if cfg.Channels.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if cfg.Channels.Slack.Enabled {
		names = append(names, "slack")
	}
	return fmt.Sprintf("%v", names)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  %s %-20s %s\n", color.Green.Sprint("[PASS]"), check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  %s %-20s %s\n", color.Red.Sprint("[FAIL]"), check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  %s %-20s %s\n", color.Yellow.Sprint("[WARN]"), check, detail)
}
