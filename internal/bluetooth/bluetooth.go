// Package bluetooth pairs and monitors a Bluetooth input device through
// BlueZ, over the system D-Bus or through bluetoothctl.
package bluetooth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnsupported means no Bluetooth tooling or controller is available.
	ErrUnsupported = errors.New("bluetooth not supported")
	// ErrNotFound means discovery finished without a matching device.
	ErrNotFound = errors.New("no matching bluetooth device found")
	// ErrUserCancelled means the request was abandoned before completion.
	ErrUserCancelled = errors.New("bluetooth request cancelled")
	// ErrConnectFailed wraps a refused or failed connection.
	ErrConnectFailed = errors.New("bluetooth connection failed")
)

// Service UUIDs matched when Filters.Services is empty.
const (
	BatteryService    = "0000180f-0000-1000-8000-00805f9b34fb"
	SerialAudioBridge = "0000ffe0-0000-1000-8000-00805f9b34fb"
)

// DefaultServices are the discovery filters used without configuration.
var DefaultServices = []string{BatteryService, SerialAudioBridge}

const defaultPollInterval = 2 * time.Second

// Filters narrows device discovery. A device matches when it advertises any
// listed service and, if Name is set, its name contains Name.
type Filters struct {
	Services    []string
	Name        string
	ScanTimeout time.Duration
}

// Device is one discovered peer.
type Device struct {
	Address   string   `json:"address"`
	Name      string   `json:"name"`
	Services  []string `json:"services,omitempty"`
	Connected bool     `json:"connected"`
}

// Label returns the name, or the address for unnamed devices.
func (d Device) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// Pairer requests, connects and watches one device.
type Pairer interface {
	RequestDevice(ctx context.Context, filters Filters) (Device, error)
	Connect(ctx context.Context, device Device) error
	Watch(ctx context.Context, device Device, onDisconnect func()) error
}

// CLIPairer drives bluetoothctl.
type CLIPairer struct {
	// PollInterval spaces connection checks in Watch.
	PollInterval time.Duration
}

var (
	devicePattern = regexp.MustCompile(`^Device\s+([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})\s*(.*)$`)
	uuidPattern   = regexp.MustCompile(`\(([0-9a-fA-F-]{36})\)`)
)

// RequestDevice scans for ScanTimeout and returns the first matching device.
func (p CLIPairer) RequestDevice(ctx context.Context, filters Filters) (Device, error) {
	if _, err := exec.LookPath("bluetoothctl"); err != nil {
		return Device{}, fmt.Errorf("%w: bluetoothctl not found", ErrUnsupported)
	}

	scan := filters.ScanTimeout
	if scan <= 0 {
		scan = 10 * time.Second
	}
	seconds := strconv.Itoa(max(1, int(scan.Round(time.Second)/time.Second)))
	if _, err := runBluetoothctl(ctx, "--timeout", seconds, "scan", "on"); err != nil {
		return Device{}, classify(ctx, err)
	}

	out, err := runBluetoothctl(ctx, "devices")
	if err != nil {
		return Device{}, classify(ctx, err)
	}

	services := filters.Services
	if len(services) == 0 {
		services = DefaultServices
	}
	for _, candidate := range parseDevices(out) {
		if filters.Name != "" && !strings.Contains(strings.ToLower(candidate.Name), strings.ToLower(filters.Name)) {
			continue
		}
		device, err := p.info(ctx, candidate.Address)
		if err != nil {
			if ctx.Err() != nil {
				return Device{}, classify(ctx, err)
			}
			continue
		}
		if device.Name == "" {
			device.Name = candidate.Name
		}
		if advertisesAny(device.Services, services) {
			return device, nil
		}
	}
	return Device{}, ErrNotFound
}

// Connect connects to device and fails with ErrConnectFailed otherwise.
func (p CLIPairer) Connect(ctx context.Context, device Device) error {
	out, err := runBluetoothctl(ctx, "connect", device.Address)
	if err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrConnectFailed, device.Label(), err)
	}
	if !strings.Contains(string(out), "Connection successful") {
		return fmt.Errorf("%w: %s: %s", ErrConnectFailed, device.Label(), lastLine(out))
	}
	return nil
}

// Watch polls the connection and calls onDisconnect once when it drops.
// It returns nil after the disconnect or ctx.Err() when cancelled first.
func (p CLIPairer) Watch(ctx context.Context, device Device, onDisconnect func()) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		info, err := p.info(ctx, device.Address)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || !info.Connected {
			if onDisconnect != nil {
				onDisconnect()
			}
			return nil
		}
	}
}

func (p CLIPairer) info(ctx context.Context, address string) (Device, error) {
	out, err := runBluetoothctl(ctx, "info", address)
	if err != nil {
		return Device{}, err
	}
	return parseInfo(address, out), nil
}

func parseDevices(out []byte) []Device {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		m := devicePattern.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		devices = append(devices, Device{Address: strings.ToUpper(m[1]), Name: strings.TrimSpace(m[2])})
	}
	return devices
}

func parseInfo(address string, out []byte) Device {
	device := Device{Address: strings.ToUpper(address)}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			device.Name = value
		case "Connected":
			device.Connected = value == "yes"
		case "UUID":
			if m := uuidPattern.FindStringSubmatch(value); m != nil {
				device.Services = append(device.Services, strings.ToLower(m[1]))
			}
		}
	}
	return device
}

func advertisesAny(have []string, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUserCancelled, ctx.Err())
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no default controller") || strings.Contains(msg, "not available") {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return err
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func runBluetoothctl(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "bluetoothctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("bluetoothctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("bluetoothctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
