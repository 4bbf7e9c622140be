package config

import (
	"testing"
	"time"

	"github.com/rbright/colloquy/internal/enhance"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseFullConfig(t *testing.T) {
	cfg, warnings, err := Parse(`
{
  // recognizer sidecar
  "recognition": {"grpc": " 10.0.0.2:7000 ", "dial_timeout_ms": 500, "restart_delay_ms": 250},
  "enhancement": {
    "backend": "GRPC",
    "grpc": "10.0.0.2:7001",
    "call_timeout_ms": 900,
    "latency_ms": {"fast": 10, "Whisper-Small": 40, "turbo": 5},
  },
  "vad": {"threshold": 0.05, "confirm_windows": 3, "silence_timeout_ms": 800},
  "audio": {"fallback": "usb"},
  "indicator": {"enable": false, "sound_enable": false, "error_timeout_ms": 0},
  "bluetooth": {"services": "180F, 0000110B-0000-1000-8000-00805F9B34FB", "scan_timeout_ms": 4000},
  "clipboard_cmd": "xclip -selection clipboard",
  "settings_db": " /tmp/colloquy.db ",
}
`, Default())
	require.NoError(t, err)

	require.Equal(t, "10.0.0.2:7000", cfg.Recognition.GRPC)
	require.Equal(t, 500*time.Millisecond, cfg.Recognition.DialTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Recognition.RestartDelay)

	require.Equal(t, BackendGRPC, cfg.Enhancement.Backend)
	require.Equal(t, "10.0.0.2:7001", cfg.Enhancement.GRPC)
	require.Equal(t, 900*time.Millisecond, cfg.Enhancement.CallTimeout)
	require.Equal(t, map[enhance.Profile]time.Duration{
		enhance.ProfileFast:         10 * time.Millisecond,
		enhance.ProfileWhisperSmall: 40 * time.Millisecond,
	}, cfg.Enhancement.Latencies)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "turbo")

	require.InDelta(t, 0.05, cfg.VAD.Threshold, 1e-9)
	require.Equal(t, 3, cfg.VAD.ConfirmWindows)
	require.Equal(t, 800*time.Millisecond, cfg.VAD.SilenceTimeout)

	require.Equal(t, "usb", cfg.Audio.Fallback)
	require.False(t, cfg.Indicator.Enable)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, []string{"180f", "0000110b-0000-1000-8000-00805f9b34fb"}, cfg.Bluetooth.Services)
	require.Equal(t, 4*time.Second, cfg.Bluetooth.ScanTimeout)
	require.Equal(t, []string{"xclip", "-selection", "clipboard"}, cfg.Clipboard.Argv)
	require.Equal(t, "/tmp/colloquy.db", cfg.SettingsDB)
}

func TestParseDoesNotAliasBase(t *testing.T) {
	base := Default()
	base.Bluetooth.Services = []string{"180f"}

	cfg, _, err := Parse(`{"bluetooth": {"services": ["180a"]}}`, base)
	require.NoError(t, err)
	require.Equal(t, []string{"180a"}, cfg.Bluetooth.Services)
	require.Equal(t, []string{"180f"}, base.Bluetooth.Services)
}

func TestParseUnknownFieldFails(t *testing.T) {
	_, _, err := Parse(`{"asr": {"grpc": "x"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseRejectsInvalidValues(t *testing.T) {
	_, _, err := Parse(`{"enhancement": {"backend": "cloud"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "enhancement.backend")

	_, _, err = Parse(`{"bluetooth": {"services": ["battery"]}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a UUID")
}
