// Package audio handles device discovery, microphone capture, and the
// level/spectrum analysis behind the visualizer.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// Constraints are the capture preferences for one acquisition.
type Constraints struct {
	Device           string
	Fallback         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// NoiseSuppressionThreshold is the noise-reduction setting above which noise
// suppression is requested from the capture path.
const NoiseSuppressionThreshold = 50

// ConstraintsFor builds constraints from the user's input device and noise
// reduction settings.
func ConstraintsFor(device string, fallback string, noiseReduction int) Constraints {
	return Constraints{
		Device:           device,
		Fallback:         fallback,
		EchoCancellation: true,
		NoiseSuppression: noiseReduction > NoiseSuppressionThreshold,
		AutoGainControl:  true,
	}
}

// Stream is one acquired microphone. Chunks is closed after Release.
type Stream interface {
	Chunks() <-chan []byte
	Device() Device
	Release()
}

// Microphone acquires capture streams.
type Microphone interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// PulseMicrophone acquires streams from the PulseAudio (or PipeWire-Pulse) server.
type PulseMicrophone struct {
	Logger *slog.Logger
}

// Acquire resolves the device and starts capture. Errors wrap
// ErrPermissionDenied or ErrDeviceUnavailable.
func (m PulseMicrophone) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return nil, classify(err)
	}

	input := c.Device
	if c.EchoCancellation {
		input = preferEchoCancel(devices, input)
	}
	selection, err := selectDeviceFromList(devices, input, c.Fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if selection.Warning != "" && m.Logger != nil {
		m.Logger.Warn("audio device fallback", "warning", selection.Warning)
	}

	capture, err := StartCapture(ctx, selection.Device, c)
	if err != nil {
		return nil, classify(err)
	}
	if m.Logger != nil {
		m.Logger.Info("microphone acquired",
			"device", selection.Device.ID,
			"echo_cancellation", c.EchoCancellation,
			"noise_suppression", c.NoiseSuppression,
			"auto_gain", c.AutoGainControl,
		)
	}
	return capture, nil
}

// classify maps Pulse failures onto the microphone error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
