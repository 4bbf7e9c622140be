package config

import (
	"fmt"
	"regexp"
	"strings"
)

var serviceUUID = regexp.MustCompile(`^(?i:[0-9a-f]{4}|[0-9a-f]{8}(?:-[0-9a-f]{4}){3}-[0-9a-f]{12})$`)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Recognition.GRPC) == "" {
		return nil, fmt.Errorf("recognition.grpc must not be empty")
	}
	if cfg.Recognition.DialTimeout <= 0 {
		return nil, fmt.Errorf("recognition.dial_timeout_ms must be > 0")
	}
	if cfg.Recognition.RestartDelay < 0 {
		return nil, fmt.Errorf("recognition.restart_delay_ms must be >= 0")
	}

	switch cfg.Enhancement.Backend {
	case BackendSimulated:
	case BackendGRPC:
		if strings.TrimSpace(cfg.Enhancement.GRPC) == "" {
			return nil, fmt.Errorf("enhancement.grpc must not be empty when enhancement.backend=grpc")
		}
	default:
		return nil, fmt.Errorf("enhancement.backend must be one of: simulated, grpc")
	}
	for profile, d := range cfg.Enhancement.Latencies {
		if d < 0 {
			return nil, fmt.Errorf("enhancement.latency_ms.%s must be >= 0", profile)
		}
	}

	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
		return nil, fmt.Errorf("vad.threshold must be between 0 and 1")
	}
	if cfg.VAD.ConfirmWindows <= 0 {
		return nil, fmt.Errorf("vad.confirm_windows must be > 0")
	}
	if cfg.VAD.SilenceTimeout <= 0 {
		return nil, fmt.Errorf("vad.silence_timeout_ms must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}

	for _, svc := range cfg.Bluetooth.Services {
		if !serviceUUID.MatchString(svc) {
			return nil, fmt.Errorf("bluetooth.services entry %q is not a UUID", svc)
		}
	}
	if cfg.Bluetooth.ScanTimeout <= 0 {
		return nil, fmt.Errorf("bluetooth.scan_timeout_ms must be > 0")
	}

	return warnings, nil
}
