package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/bluetooth"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/enhance"
	"github.com/rbright/colloquy/internal/indicator"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/output"
	"github.com/rbright/colloquy/internal/recognition"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"
	"github.com/rbright/colloquy/internal/tui"
	"github.com/rbright/colloquy/internal/vad"
)

// commandRun makes this process the owner: it holds the socket, runs the
// session controller and, on a terminal, the dialog view.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, settingsPath string, interactive bool, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	owner, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v (use `%s toggle` or other commands to drive it)\n", err, binaryName)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		if err := owner.Release(); err != nil {
			logger.Warn("release owner socket", "path", socketPath, "error", err)
		}
	}()
	if owner.Recovered {
		logger.Info("removed stale owner socket", "path", socketPath)
	}

	store, current := openSettings(ctx, settingsPath, logger)
	if store != nil {
		defer store.Close()
	}

	enhancer, closeEnhancer := newEnhancer(ctx, cfg, logger)
	defer closeEnhancer()

	deps := session.Deps{
		Logger:     logger,
		Microphone: audio.PulseMicrophone{Logger: logger},
		Recognizer: recognition.NewClient(cfg.Recognition.GRPC, cfg.Recognition.DialTimeout, logger),
		Enhancer:   enhancer,
		Assigner:   transcript.NewAssigner(nil),
		Settings:   current,
		Indicator:  indicator.NewNotifier(cfg.Indicator, logger),
		Clipboard:  output.NewClipboard(cfg, logger),
		Pairer:     bluetooth.DefaultPairer(),

		RestartDelay: cfg.Recognition.RestartDelay,
		VAD: vad.Config{
			Threshold:      cfg.VAD.Threshold,
			ConfirmWindows: cfg.VAD.ConfirmWindows,
			SilenceTimeout: cfg.VAD.SilenceTimeout,
		},
		AudioFallback: cfg.Audio.Fallback,
		Bluetooth:     bluetoothFilters(cfg),
	}
	if store != nil {
		deps.Store = store
	}
	controller := session.New(deps)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(runCtx, owner, controller)
	}()
	controllerErrCh := make(chan error, 1)
	go func() {
		controllerErrCh <- controller.Run(runCtx)
	}()

	logger.Info("owner started", "socket", socketPath, "interactive", interactive)

	exitCode := 0
	if interactive {
		if err := tui.Run(runCtx, controller); err != nil {
			fmt.Fprintf(r.Stderr, "error: dialog view failed: %v\n", err)
			exitCode = 1
		}
	} else {
		fmt.Fprintf(r.Stdout, "colloquy owner listening on %s\n", socketPath)
		<-runCtx.Done()
	}
	cancel()

	if err := <-controllerErrCh; err != nil {
		fmt.Fprintf(r.Stderr, "error: session controller failed: %v\n", err)
		exitCode = 1
	}
	if err := <-serverErrCh; err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		exitCode = 1
	}

	logger.Info("owner stopped", "entries", len(controller.Entries()))
	return exitCode
}

// openSettings returns the store and its saved settings. A store that cannot
// be opened leaves the session on defaults without persistence. Invalid rows
// are skipped; the rest of the saved settings still apply.
func openSettings(ctx context.Context, path string, logger *slog.Logger) (*settings.Store, settings.Settings) {
	store, err := settings.Open(ctx, path)
	if err != nil {
		logger.Warn("settings store unavailable; using defaults", "path", path, "error", err)
		return nil, settings.Defaults()
	}
	loaded, _, err := store.Load(ctx)
	if err != nil {
		logger.Warn("some stored settings were skipped", "path", path, "error", err)
	}
	return store, loaded
}

// newEnhancer returns the configured backend. A grpc backend that cannot be
// reached falls back to the simulator.
func newEnhancer(ctx context.Context, cfg config.Config, logger *slog.Logger) (enhance.Enhancer, func()) {
	simulator := enhance.NewSimulator(cfg.Enhancement.Latencies)
	if cfg.Enhancement.Backend != config.BackendGRPC {
		return simulator, func() {}
	}

	remote, err := enhance.DialRemote(ctx, cfg.Enhancement.GRPC, cfg.Recognition.DialTimeout, cfg.Enhancement.CallTimeout)
	if err != nil {
		logger.Warn("enhancement backend unavailable; using simulator", "endpoint", cfg.Enhancement.GRPC, "error", err)
		return simulator, func() {}
	}
	return remote, func() { _ = remote.Close() }
}

func bluetoothFilters(cfg config.Config) bluetooth.Filters {
	return bluetooth.Filters{
		Services:    cfg.Bluetooth.Services,
		ScanTimeout: cfg.Bluetooth.ScanTimeout,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
