package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/recognition"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)
	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)

	t.Setenv("TEST_DOCTOR_ENV", "")
	check = checkEnv("TEST_DOCTOR_ENV", func(v string) bool { return v != "" }, "ok", "empty")
	require.False(t, check.Pass)
	require.Equal(t, "empty", check.Message)
}

func TestCheckCommandEmptyArgv(t *testing.T) {
	check := checkCommand(nil, "clipboard_cmd")
	require.False(t, check.Pass)
	require.Equal(t, "clipboard_cmd", check.Name)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckCommandFindsStubbedBinary(t *testing.T) {
	installStub(t, "fake-copy", "exit 0")

	check := checkCommand([]string{"fake-copy", "--trim-newline"}, "clipboard_cmd")
	require.True(t, check.Pass)
	require.Equal(t, "fake-copy", check.Name)
	require.Contains(t, check.Message, "clipboard_cmd command is available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-colloquy-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found in PATH")
}

func TestCheckIndicatorHyprReportsVersion(t *testing.T) {
	installStub(t, "hyprctl", `echo "Hyprland 0.45.2 built from branch main"`)

	check := checkIndicator(context.Background(), config.IndicatorConfig{Enable: true, Backend: "hypr"})
	require.True(t, check.Pass)
	require.Equal(t, "indicator.hypr", check.Name)
	require.Contains(t, check.Message, "Hyprland 0.45.2")
}

func TestCheckIndicatorHyprFailure(t *testing.T) {
	installStub(t, "hyprctl", `echo "no instance" >&2; exit 1`)

	check := checkIndicator(context.Background(), config.IndicatorConfig{Enable: true, Backend: "hypr"})
	require.False(t, check.Pass)
}

func TestCheckIndicatorDesktopLooksForBusctl(t *testing.T) {
	installStub(t, "busctl", "exit 0")

	check := checkIndicator(context.Background(), config.IndicatorConfig{Enable: true, Backend: "desktop"})
	require.True(t, check.Pass)
	require.Equal(t, "busctl", check.Name)
}

func TestCheckSettingsStoreWithoutSavedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	input := "default"

	check := checkSettingsStore(context.Background(), path, &input)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "defaults apply")
	require.Equal(t, "default", input)
}

func TestCheckSettingsStoreReportsSavedInput(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := settings.Open(ctx, path)
	require.NoError(t, err)
	saved, err := settings.Defaults().Apply(settings.KeyAudioInput, "alsa_input.usb-mic")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, saved))
	require.NoError(t, store.Close())

	input := "default"
	check := checkSettingsStore(ctx, path, &input)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "language=en-US")
	require.Equal(t, "alsa_input.usb-mic", input)
}

func TestCheckSettingsStoreOpenFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	input := "default"
	check := checkSettingsStore(context.Background(), filepath.Join(blocker, "settings.db"), &input)
	require.False(t, check.Pass)
	require.Equal(t, "settings", check.Name)
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), "default", "")
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
}

func TestCheckGRPCHealthServing(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus(recognition.ServiceName, healthpb.HealthCheckResponse_SERVING)

	check := checkGRPCHealth(context.Background(), "recognition.grpc", addr, recognition.ServiceName, time.Second)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "serving at "+addr)
}

func TestCheckGRPCHealthNotServing(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus(recognition.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	check := checkGRPCHealth(context.Background(), "recognition.grpc", addr, recognition.ServiceName, time.Second)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "NOT_SERVING")
}

func TestCheckGRPCHealthEmptyEndpoint(t *testing.T) {
	check := checkGRPCHealth(context.Background(), "recognition.grpc", " ", "", time.Second)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "endpoint is empty")
}

func TestCheckGRPCHealthUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	check := checkGRPCHealth(context.Background(), "recognition.grpc", addr, "", 150*time.Millisecond)
	require.False(t, check.Pass)
}

func TestRunChecksConfiguredTools(t *testing.T) {
	installStub(t, "fake-copy", "exit 0")
	installStub(t, "busctl", "exit 0")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	addr, _ := startHealthServer(t)

	cfg := config.Default()
	cfg.Clipboard = config.CommandConfig{Raw: "fake-copy", Argv: []string{"fake-copy"}}
	cfg.Indicator.Backend = "desktop"
	cfg.Recognition.GRPC = addr
	cfg.Recognition.DialTimeout = time.Second

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg}, filepath.Join(t.TempDir(), "settings.db"))

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}

	require.True(t, byName["config"].Pass)
	require.True(t, byName["XDG_RUNTIME_DIR"].Pass)
	require.True(t, byName["fake-copy"].Pass)
	require.True(t, byName["busctl"].Pass)
	require.True(t, byName["settings"].Pass)
	require.True(t, byName["recognition.grpc"].Pass)
	require.False(t, byName["audio.device"].Pass)
	require.NotContains(t, byName, "enhancement.grpc")
	require.False(t, report.OK())
}

func TestRunProbesGRPCEnhancementBackend(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	addr, _ := startHealthServer(t)

	cfg := config.Default()
	cfg.Indicator.Enable = false
	cfg.Recognition.GRPC = addr
	cfg.Enhancement.Backend = config.BackendGRPC
	cfg.Enhancement.GRPC = addr

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg}, filepath.Join(t.TempDir(), "settings.db"))

	var saw bool
	for _, check := range report.Checks {
		if check.Name == "enhancement.grpc" {
			saw = true
			require.True(t, check.Pass)
		}
		require.NotEqual(t, "indicator.hypr", check.Name)
	}
	require.True(t, saw)
}

func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	return listener.Addr().String(), hs
}

func installStub(t *testing.T, name string, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
