// Package config resolves, parses, validates, and defaults colloquy configuration.
package config

import (
	"time"

	"github.com/rbright/colloquy/internal/enhance"
)

// Config is the fully materialized runtime configuration. User-facing
// transcription preferences live in the settings store instead.
type Config struct {
	Recognition RecognitionConfig
	Enhancement EnhancementConfig
	VAD         VADConfig
	Audio       AudioConfig
	Indicator   IndicatorConfig
	Clipboard   CommandConfig
	SettingsDB  string
	Bluetooth   BluetoothConfig
}

// RecognitionConfig points at the streaming recognizer backend.
type RecognitionConfig struct {
	GRPC         string
	DialTimeout  time.Duration
	RestartDelay time.Duration
}

// EnhancementConfig selects and tunes the enhancement backend.
type EnhancementConfig struct {
	Backend     string
	GRPC        string
	CallTimeout time.Duration
	Latencies   map[enhance.Profile]time.Duration
}

// VADConfig tunes voice-activated capture.
type VADConfig struct {
	Threshold      float64
	ConfirmWindows int
	SilenceTimeout time.Duration
}

// AudioConfig holds the fallback source used when the selected input is unusable.
type AudioConfig struct {
	Fallback string
}

// IndicatorConfig controls notification and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// BluetoothConfig filters and bounds device discovery.
type BluetoothConfig struct {
	Services    []string
	ScanTimeout time.Duration
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Enhancement backends.
const (
	BackendSimulated = "simulated"
	BackendGRPC      = "grpc"
)
