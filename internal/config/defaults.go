package config

import (
	"time"

	"github.com/rbright/colloquy/internal/vad"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Recognition: RecognitionConfig{
			GRPC:         "127.0.0.1:50061",
			DialTimeout:  3 * time.Second,
			RestartDelay: 100 * time.Millisecond,
		},
		Enhancement: EnhancementConfig{
			Backend:     BackendSimulated,
			GRPC:        "127.0.0.1:50062",
			CallTimeout: 5 * time.Second,
		},
		VAD: VADConfig{
			Threshold:      vad.DefaultThreshold,
			ConfirmWindows: vad.DefaultConfirmWindows,
			SilenceTimeout: vad.DefaultSilenceTimeout,
		},
		Audio: AudioConfig{Fallback: "default"},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "colloquy",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Bluetooth: BluetoothConfig{
			ScanTimeout: 10 * time.Second,
		},
	}
}
