package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.psi09.relay"
	systemdUnit  = "psi09.service"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the relay as a background service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the relay as a user service",
		Long:  "Generates and installs a service file that runs 'psi09 run' on login and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			unit := serviceUnit{Exec: execPath, Config: resolveConfigPath(), WorkDir: workDir}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(unit)
			case "linux":
				return installSystemd(unit)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the relay service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "darwin":
				return removeServiceFile(launchdPath(), "launchctl unload")
			case "linux":
				return removeServiceFile(systemdPath(), "systemctl --user disable --now psi09")
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	})
	return cmd
}

// serviceUnit holds the values substituted into the service templates.
// WorkDir is where .env is looked up at runtime.
type serviceUnit struct {
	Exec    string
	Config  string
	WorkDir string
}

func (u serviceUnit) render(tmpl string) string {
	return strings.NewReplacer(
		"{{EXEC}}", u.Exec,
		"{{CONFIG}}", u.Config,
		"{{WORKDIR}}", u.WorkDir,
		"{{LABEL}}", launchdLabel,
	).Replace(tmpl)
}

func launchdPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func systemdPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

func installLaunchd(u serviceUnit) error {
	home, _ := os.UserHomeDir()
	logDir := filepath.Join(home, ".psi09", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	plist := strings.ReplaceAll(u.render(launchdTemplate), "{{LOGDIR}}", logDir)

	path := launchdPath()
	if err := writeServiceFile(path, plist); err != nil {
		return err
	}
	fmt.Printf("Service installed: %s\n", path)
	fmt.Printf("To start: launchctl load %s\n", path)
	fmt.Printf("To stop:  launchctl unload %s\n", path)
	return nil
}

func installSystemd(u serviceUnit) error {
	path := systemdPath()
	if err := writeServiceFile(path, u.render(systemdTemplate)); err != nil {
		return err
	}
	fmt.Printf("Service installed: %s\n", path)
	fmt.Printf("To enable and start: systemctl --user enable --now psi09\n")
	fmt.Printf("To follow logs:      journalctl --user -u psi09 -f\n")
	return nil
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func removeServiceFile(path, hint string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove service file: %w", err)
	}
	fmt.Printf("Service uninstalled: %s\n", path)
	fmt.Printf("If it is still running, stop it with: %s\n", hint)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>run</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{WORKDIR}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOGDIR}}/psi09.log</string>
    <key>StandardErrorPath</key>
    <string>{{LOGDIR}}/psi09-error.log</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=PSI-09 chat relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{WORKDIR}}
ExecStart={{EXEC}} run --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
