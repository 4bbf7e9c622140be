// Package doctor runs readiness diagnostics for config, tools, audio, the
// recognition backend and the settings store.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/hypr"
	"github.com/rbright/colloquy/internal/recognition"
	"github.com/rbright/colloquy/internal/rpc"
	"github.com/rbright/colloquy/internal/settings"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment, config and backend checks. settingsPath is the
// resolved settings database.
func Run(ctx context.Context, cfg config.Loaded, settingsPath string) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "owner socket directory available", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkIndicator(ctx, cfg.Config.Indicator))
	}
	checks = append(checks, checkBinary("bluetoothctl", "bluetooth pairing available"))

	input := settings.Defaults().AudioInput
	checks = append(checks, checkSettingsStore(ctx, settingsPath, &input))
	checks = append(checks, checkAudioSelection(ctx, input, cfg.Config.Audio.Fallback))

	checks = append(checks, checkGRPCHealth(ctx, "recognition.grpc", cfg.Config.Recognition.GRPC, recognition.ServiceName, cfg.Config.Recognition.DialTimeout))
	if cfg.Config.Enhancement.Backend == config.BackendGRPC {
		checks = append(checks, checkGRPCHealth(ctx, "enhancement.grpc", cfg.Config.Enhancement.GRPC, "", cfg.Config.Recognition.DialTimeout))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkIndicator(ctx context.Context, cfg config.IndicatorConfig) Check {
	if strings.EqualFold(cfg.Backend, "desktop") {
		return checkBinary("busctl", "desktop notifications available")
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	v, err := hypr.Version(probeCtx)
	if err != nil {
		return Check{Name: "indicator.hypr", Pass: false, Message: err.Error()}
	}
	return Check{Name: "indicator.hypr", Pass: true, Message: v}
}

// checkSettingsStore opens the settings database and, when it holds an
// audio input, reports it through input.
func checkSettingsStore(ctx context.Context, path string, input *string) Check {
	store, err := settings.Open(ctx, path)
	if err != nil {
		return Check{Name: "settings", Pass: false, Message: err.Error()}
	}
	defer store.Close()

	loaded, found, err := store.Load(ctx)
	if err != nil {
		return Check{Name: "settings", Pass: false, Message: err.Error()}
	}
	if !found {
		return Check{Name: "settings", Pass: true, Message: fmt.Sprintf("%s (no saved settings; defaults apply)", path)}
	}
	*input = loaded.AudioInput
	return Check{Name: "settings", Pass: true, Message: fmt.Sprintf("%s (language=%s model=%s)", path, loaded.Language, loaded.EnhancementModel)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, input string, fallback string) Check {
	selection, err := audio.SelectDevice(ctx, input, fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkGRPCHealth queries the standard health service of a backend.
func checkGRPCHealth(ctx context.Context, name string, endpoint string, service string, timeout time.Duration) Check {
	if strings.TrimSpace(endpoint) == "" {
		return Check{Name: name, Pass: false, Message: "endpoint is empty"}
	}
	if timeout <= 0 || timeout > probeTimeout {
		timeout = probeTimeout
	}

	status, err := rpc.CheckHealth(ctx, endpoint, service, timeout)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s reports %s", endpoint, status)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("serving at %s", endpoint)}
}
