// Package output delivers the transcript outside the owner process:
// clipboard copies and JSON export files.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/rbright/colloquy/internal/config"
)

// ErrNothingToCopy is returned when the transcript is empty.
var ErrNothingToCopy = errors.New("transcript is empty")

// Clipboard writes text through the configured clipboard command.
type Clipboard struct {
	command config.CommandConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewClipboard constructs a clipboard writer from runtime config.
func NewClipboard(cfg config.Config, logger *slog.Logger) *Clipboard {
	return &Clipboard{command: cfg.Clipboard, timeout: 2 * time.Second, logger: logger}
}

// Copy replaces the clipboard contents with text.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if text == "" {
		return ErrNothingToCopy
	}

	copyCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := runCommandWithInput(copyCtx, c.command.Argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("clipboard updated", "bytes", len(text), "command", c.command.Raw)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
