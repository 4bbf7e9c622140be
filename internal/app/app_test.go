package app

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/colloquy/internal/bluetooth"
	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, nil, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "colloquy")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, nil, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerToggleReturnsNoActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "toggle"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no active colloquy session")
}

func TestRunnerForwardsCommandsToActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 16)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		return ipc.Response{OK: true, Message: req.Command + " handled"}
	})
	defer shutdown()

	cases := [][]string{
		{"toggle"},
		{"press"},
		{"release"},
		{"mode", "voice-activated"},
		{"speaker", "speaker-2"},
		{"speaker-add", "Ada", "Lovelace"},
		{"copy"},
	}
	for _, args := range cases {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner := Runner{Stdout: stdout, Stderr: stderr}

		exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, args...))
		require.Equal(t, 0, exitCode, args)
		require.Empty(t, stderr.String(), args)
		require.Equal(t, args[0]+" handled\n", stdout.String())
	}

	var got []ipc.Request
	for range cases {
		got = append(got, <-requests)
	}
	require.Equal(t, ipc.Request{Command: "mode", Args: []string{"voice-activated"}}, got[3])
	require.Equal(t, ipc.Request{Command: "speaker-add", Args: []string{"Ada Lovelace"}}, got[5])
	require.Equal(t, "copy", got[6].Command)
}

func TestRunnerStatusPrintsOwnerSnapshot(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, "status", req.Command)
		resp, err := ipc.Response{OK: true, State: string(fsm.StateCapturing)}.WithPayload(session.Snapshot{
			State:  fsm.StateCapturing,
			Mode:   fsm.ModeContinuous,
			Count:  3,
			Status: session.Status{Kind: session.StatusRecording, Text: session.TextListening},
		})
		require.NoError(t, err)
		return resp
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "capturing continuous 3 Listening...\n", stdout.String())
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: ""}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerSetWithoutOwnerWritesStore(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "set", "noise", "70"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "noise_reduction = 70\n", stdout.String())

	store, err := settings.Open(context.Background(), paths.settingsPath)
	require.NoError(t, err)
	defer store.Close()
	loaded, found, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 70, loaded.NoiseReduction)

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "settings"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "noise_reduction = 70")
	require.Contains(t, stdout.String(), "language = en-US")
}

func TestOpenSettingsKeepsValidRowsWhenSomeAreInvalid(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := settings.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES ('language', 'es-ES'), ('noise_reduction', 'loud')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var logs bytes.Buffer
	opened, loaded := openSettings(ctx, path, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NotNil(t, opened)
	defer opened.Close()

	require.Equal(t, "es-ES", loaded.Language)
	require.Equal(t, settings.Defaults().NoiseReduction, loaded.NoiseReduction)
	require.Contains(t, logs.String(), "some stored settings were skipped")
}

func TestRunnerSetRejectsInvalidValue(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "set", "noise_reduction", "140"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "between 0 and 100")
}

func TestRunnerSetForwardsToOwner(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 1)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		return ipc.Response{OK: true, Message: "language = de-DE"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "set", "language", "de-DE"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "language = de-DE\n", stdout.String())
	require.Equal(t, ipc.Request{Command: "set", Args: []string{"language", "de-DE"}}, <-requests)

	_, statErr := os.Stat(paths.settingsPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerClearConfirmation(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 4)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		return ipc.Response{OK: true, Message: "transcript cleared"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdin: strings.NewReader("n\n"), Stdout: &stdout, Stderr: &bytes.Buffer{}}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "clear"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), transcript.ClearPrompt)
	require.Contains(t, stdout.String(), "nothing cleared")
	require.Empty(t, requests)

	stdout.Reset()
	runner.Stdin = strings.NewReader("yes\n")
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "clear"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, ipc.Request{Command: "clear", Args: []string{session.ClearConfirmedArg}}, <-requests)

	stdout.Reset()
	runner.Stdin = nil
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "--yes", "clear"})
	require.Equal(t, 0, exitCode)
	require.NotContains(t, stdout.String(), transcript.ClearPrompt)
	require.Equal(t, "clear", (<-requests).Command)
}

func TestRunnerExportSendsAbsolutePath(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 1)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		return ipc.Response{OK: true, Message: req.Arg(0)}
	})
	defer shutdown()

	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "export", "out.json"})
	require.Equal(t, 0, exitCode)

	req := <-requests
	require.True(t, filepath.IsAbs(req.Arg(0)))
	require.Equal(t, "out.json", filepath.Base(req.Arg(0)))
}

func TestRunnerOwnerServesCommandsHeadless(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	done := make(chan int, 1)
	go func() {
		done <- owner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()

	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), paths.socketPath(), 100*time.Millisecond)
		return alive
	}, 5*time.Second, 20*time.Millisecond)

	var stdout bytes.Buffer
	client := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "status"}))
	require.Equal(t, "idle continuous 0 Ready to transcribe\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "speaker-add", "Ada Lovelace"}))
	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "speakers"}))
	require.Contains(t, stdout.String(), "Ada Lovelace")
	require.Contains(t, stdout.String(), "  auto")

	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "set", "model", "fast"}))
	require.Equal(t, "enhancement_model = fast\n", stdout.String())

	exportDir := t.TempDir()
	stdout.Reset()
	require.Equal(t, 0, client.Execute(context.Background(), []string{"--config", paths.configPath, "export", exportDir}))
	written := strings.TrimSpace(stdout.String())
	require.Equal(t, exportDir, filepath.Dir(written))
	require.FileExists(t, written)

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("owner did not stop")
	}

	_, statErr := os.Stat(paths.socketPath())
	require.ErrorIs(t, statErr, os.ErrNotExist)

	store, err := settings.Open(context.Background(), paths.settingsPath)
	require.NoError(t, err)
	defer store.Close()
	loaded, found, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "fast", string(loaded.EnhancementModel))
}

func TestRunnerSecondOwnerIsRejected(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "already running")
}

func TestPairDirectConnectsAndWatches(t *testing.T) {
	pairer := &fakePairer{device: bluetooth.Device{Address: "AA:BB:CC:DD:EE:FF", Name: "Lapel Mic"}}

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	logger := slog.New(slog.DiscardHandler)

	exitCode := runner.pairDirect(context.Background(), pairer, bluetooth.Filters{Name: "lapel"}, true, logger)
	require.Equal(t, 0, exitCode)
	require.Equal(t, "lapel", pairer.filters.Name)
	require.Contains(t, stdout.String(), "connected to Lapel Mic")
	require.Contains(t, stdout.String(), "Lapel Mic disconnected")
}

func TestPairDirectReportsFailure(t *testing.T) {
	pairer := &fakePairer{requestErr: bluetooth.ErrNotFound}

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.pairDirect(context.Background(), pairer, bluetooth.Filters{}, false, slog.New(slog.DiscardHandler))
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), bluetooth.ErrNotFound.Error())
}

func TestWatchOwnerBluetoothStopsOnDisconnect(t *testing.T) {
	paths := setupRunnerEnv(t)
	old := watchInterval
	watchInterval = 10 * time.Millisecond
	t.Cleanup(func() { watchInterval = old })

	var mu sync.Mutex
	polls := 0
	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		mu.Lock()
		defer mu.Unlock()
		polls++
		snap := session.Snapshot{Mode: fsm.ModeContinuous, Bluetooth: "Lapel Mic"}
		if polls >= 3 {
			snap.Bluetooth = ""
		}
		resp, _ := ipc.Response{OK: true}.WithPayload(snap)
		return resp
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, runner.watchOwnerBluetooth(context.Background()))
	require.Contains(t, stdout.String(), "device disconnected")
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	shutdown := startIPCServerForRunnerTest(t, socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case "status":
			return ipc.Response{OK: true, State: "capturing"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "capturing", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.Request{Command: "bogus"}, forwardTimeout)
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "forward command \"status\":")

	<-done
	require.NoError(t, listener.Close())
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "XDG_RUNTIME_DIR")
	require.Contains(t, stdout.String(), "recognition.grpc")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

type fakePairer struct {
	device     bluetooth.Device
	requestErr error
	filters    bluetooth.Filters
}

func (f *fakePairer) RequestDevice(_ context.Context, filters bluetooth.Filters) (bluetooth.Device, error) {
	f.filters = filters
	return f.device, f.requestErr
}

func (f *fakePairer) Connect(context.Context, bluetooth.Device) error { return nil }

func (f *fakePairer) Watch(_ context.Context, _ bluetooth.Device, onDisconnect func()) error {
	onDisconnect()
	return nil
}

type runnerPaths struct {
	configPath   string
	runtimeDir   string
	settingsPath string
}

func (p runnerPaths) socketPath() string {
	return filepath.Join(p.runtimeDir, "colloquy.sock")
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	settingsPath := filepath.Join(t.TempDir(), "settings.db")
	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
  // tests never touch the desktop
  "indicator": {"enable": false, "sound_enable": false},
  "recognition": {"grpc": "127.0.0.1:1", "dial_timeout_ms": 100},
  "settings_db": "` + settingsPath + `"
}
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir, settingsPath: settingsPath}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
