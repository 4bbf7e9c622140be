// Package app maps parsed CLI commands onto the owner process or onto IPC
// forwards to a running owner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/cli"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/doctor"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/logging"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/version"
)

const (
	binaryName     = "colloquy"
	forwardTimeout = 220 * time.Millisecond
	actionTimeout  = 5 * time.Second
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	interactive := parsed.Command == cli.CommandRun && isTerminal(r.Stdout)
	logOpts := logging.Options{Verbose: parsed.Verbose}
	if parsed.Verbose && !interactive {
		logOpts.Console = r.Stderr
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	settingsPath, err := resolveSettingsPath(cfgLoaded.Config)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logger.Debug("command start",
		"command", parsed.Command,
		"args", parsed.Args,
		"config", cfgLoaded.Path,
		"settings", settingsPath,
		"log", logRuntime.Path,
	)

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfg, settingsPath, interactive, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, settingsPath)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandSpeakers:
		return r.commandSpeakers(ctx)
	case cli.CommandSettings:
		return r.commandSettings(ctx, settingsPath)
	case cli.CommandSet:
		return r.commandSet(ctx, settingsPath, parsed.Args[0], parsed.Joined(1))
	case cli.CommandClear:
		return r.commandClear(ctx, parsed.Yes)
	case cli.CommandExport:
		return r.commandExport(ctx, parsed.Args)
	case cli.CommandPair:
		return r.commandPair(ctx, cfg, parsed.Joined(0), parsed.Watch, logger)
	case cli.CommandSpeakerAdd:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command), Args: []string{parsed.Joined(0)}}, forwardTimeout)
	case cli.CommandCopy:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command)}, actionTimeout)
	case cli.CommandToggle, cli.CommandPress, cli.CommandRelease, cli.CommandMode, cli.CommandSpeaker:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command), Args: parsed.Args}, forwardTimeout)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func resolveSettingsPath(cfg config.Config) (string, error) {
	if strings.TrimSpace(cfg.SettingsDB) != "" {
		return cfg.SettingsDB, nil
	}
	return settings.DefaultPath()
}

// forwardOrFail sends req to the owner and prints its message.
func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request, timeout time.Duration) int {
	resp, ok := r.forward(ctx, req, timeout)
	if !ok {
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forward sends req and reports failures on stderr. ok is false when no
// owner answered or the owner rejected the command.
func (r Runner) forward(ctx context.Context, req ipc.Request, timeout time.Duration) (ipc.Response, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active colloquy session (start one with `%s run`)\n", binaryName)
		return ipc.Response{}, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}
	return resp, true
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if errors.Is(err, ipc.ErrNoOwner) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
