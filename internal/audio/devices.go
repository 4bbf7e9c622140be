package audio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Bluetooth reports whether the source belongs to a BlueZ device.
func (d Device) Bluetooth() bool {
	return strings.HasPrefix(d.ID, "bluez_")
}

// Monitor reports whether the source only mirrors a sink's output.
func (d Device) Monitor() bool {
	return strings.HasSuffix(d.ID, ".monitor")
}

// usable returns "" when the device can capture, otherwise why not.
func (d Device) usable() string {
	switch {
	case !d.Available:
		return "unavailable"
	case d.Muted:
		return "muted"
	}
	return ""
}

// Selection is the device capture will use. Fallback is set when the
// requested device was passed over; Warning then says why.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns the server's input sources, default first, then
// real inputs before monitors, each group ordered by ID.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return devicesFromInfos(infos, defaultSource.ID()), nil
}

func devicesFromInfos(infos pulseproto.GetSourceInfoListReply, defaultID string) []Device {
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	slices.SortStableFunc(devices, func(a, b Device) int {
		if a.Default != b.Default {
			if a.Default {
				return -1
			}
			return 1
		}
		if a.Monitor() != b.Monitor() {
			if b.Monitor() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return devices
}

// SelectDevice resolves the input setting against live devices, falling
// back per the audio.fallback config.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// preferEchoCancel swaps the default source for a module-echo-cancel source
// when one is loaded. Explicit device choices are left alone.
func preferEchoCancel(devices []Device, input string) string {
	input = normalizeTerm(input)
	if input != "" {
		return input
	}
	for _, dev := range devices {
		if dev.usable() == "" && strings.Contains(strings.ToLower(dev.ID), "echo-cancel") {
			return strings.ToLower(dev.ID)
		}
	}
	return input
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("colloquy"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// normalizeTerm lowercases a device search term; "default" becomes "".
func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "default" {
		return ""
	}
	return term
}

// find returns the device a term names. An empty term names the default
// source.
func find(devices []Device, term string) (Device, bool) {
	for _, dev := range devices {
		if term == "" && dev.Default || term != "" && deviceMatches(dev, term) {
			return dev, true
		}
	}
	return Device{}, false
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}
	input, fallback = normalizeTerm(input), normalizeTerm(fallback)

	primary, ok := find(devices, input)
	if !ok {
		if input == "" {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		return Selection{}, fmt.Errorf("audio input %q did not match any device", input)
	}
	reason := primary.usable()
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	alt, ok := find(devices, fallback)
	if !ok {
		if fallback == "" {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: default audio source is unavailable", primary.ID, reason)
		}
		return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
	}
	switch alt.usable() {
	case "unavailable":
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alt.ID)
	case "muted":
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alt.ID)
	}

	return Selection{
		Device:   alt,
		Warning:  fmt.Sprintf("audio input %q is %s; falling back to %q", primary.ID, reason, alt.ID),
		Fallback: primary.ID != alt.ID,
	}, nil
}

// deviceMatches reports whether a lowercase term is part of the device ID
// or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// Port availability values from the Pulse protocol.
const (
	portAvailableUnknown = 0
	portAvailableYes     = 2
)

// sourceAvailable checks the active port. Sources without ports are
// always available.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available == portAvailableUnknown || port.Available == portAvailableYes
		}
	}
	return true
}
