package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

// DesktopSender raises an OS-level notification through notify-send on
// Linux or osascript on macOS.
type DesktopSender struct {
	// command builds the process to run; replaced in tests.
	command func(ctx context.Context, title, message string) (*exec.Cmd, error)
}

// NewDesktopSender returns a sender for the current platform.
func NewDesktopSender() *DesktopSender {
	return &DesktopSender{command: platformCommand}
}

// Send runs the platform notifier and waits for it to exit.
func (d *DesktopSender) Send(ctx context.Context, title, message string) error {
	cmd, err := d.command(ctx, title, message)
	if err != nil {
		return fmt.Errorf("desktop: %w", err)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("desktop: %s: %w: %s", cmd.Path, err, out)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DesktopSender) Name() string { return "desktop" }

func platformCommand(ctx context.Context, title, message string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		return exec.CommandContext(ctx, "notify-send", "--app-name=oddsync", title, message), nil
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s",
			strconv.Quote(message), strconv.Quote(title))
		return exec.CommandContext(ctx, "osascript", "-e", script), nil
	default:
		return nil, errors.New("no desktop notifier for " + runtime.GOOS)
	}
}
