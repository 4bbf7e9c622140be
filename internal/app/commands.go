package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/bluetooth"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"
)

// watchInterval spaces owner status polls while pair --watch waits.
var watchInterval = 2 * time.Second

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s | bluetooth=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
			yesNo(device.Bluetooth()),
		)
	}
	return 0
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// commandStatus prints "state mode count status-text", or idle when no owner runs.
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var snap session.Snapshot
	if err := resp.DecodePayload(&snap); err != nil {
		fmt.Fprintf(r.Stderr, "error: decode status: %v\n", err)
		return 1
	}
	state := resp.State
	if state == "" {
		state = "idle"
	}
	if snap.Mode == "" {
		fmt.Fprintln(r.Stdout, state)
		return 0
	}
	line := fmt.Sprintf("%s %s %d %s", state, snap.Mode, snap.Count, snap.Status.Text)
	if snap.Bluetooth != "" {
		line += " [" + snap.Bluetooth + "]"
	}
	fmt.Fprintln(r.Stdout, strings.TrimSpace(line))
	return 0
}

func (r Runner) commandSpeakers(ctx context.Context) int {
	resp, ok := r.forward(ctx, ipc.Request{Command: "speakers"}, forwardTimeout)
	if !ok {
		return 1
	}
	var list session.SpeakerList
	if err := resp.DecodePayload(&list); err != nil {
		fmt.Fprintf(r.Stderr, "error: decode speakers: %v\n", err)
		return 1
	}

	mark := func(id string) string {
		if id == list.Selected {
			return "*"
		}
		return " "
	}
	fmt.Fprintf(r.Stdout, "%s %s\n", mark(transcript.Auto), transcript.Auto)
	for _, s := range list.Speakers {
		fmt.Fprintf(r.Stdout, "%s %s | %s\n", mark(s.ID), s.ID, s.Name)
	}
	return 0
}

// commandSettings prints the owner's settings, or the stored ones when no
// owner runs.
func (r Runner) commandSettings(ctx context.Context, settingsPath string) int {
	if resp, ok := r.tryOwner(ctx, ipc.Request{Command: "settings"}); ok {
		fmt.Fprint(r.Stdout, resp.Message)
		return 0
	}

	store, err := settings.Open(ctx, settingsPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	current, _, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
	}
	fmt.Fprint(r.Stdout, current.String())
	return 0
}

// commandSet changes a setting through the owner so the running session
// picks it up, or directly in the store when no owner runs.
func (r Runner) commandSet(ctx context.Context, settingsPath string, key string, value string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err == nil {
		resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "set", Args: []string{key, value}}, forwardTimeout)
		if handled {
			if err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				return 1
			}
			fmt.Fprintln(r.Stdout, resp.Message)
			return 0
		}
	}

	store, err := settings.Open(ctx, settingsPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	current, _, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
	}
	next, err := current.Apply(key, value)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := store.Save(ctx, next); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	canonical, _ := settings.CanonicalKey(key)
	rendered, _ := next.Get(canonical)
	fmt.Fprintf(r.Stdout, "%s = %s\n", canonical, rendered)
	return 0
}

// commandClear asks on stdin before forwarding a confirmed clear.
func (r Runner) commandClear(ctx context.Context, yes bool) int {
	if !yes {
		confirmed, err := r.confirm(transcript.ClearPrompt)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if !confirmed {
			fmt.Fprintln(r.Stdout, "nothing cleared")
			return 0
		}
	}
	return r.forwardOrFail(ctx, ipc.Request{Command: "clear", Args: []string{session.ClearConfirmedArg}}, actionTimeout)
}

func (r Runner) confirm(prompt string) (bool, error) {
	if r.Stdin == nil {
		return false, errors.New("confirmation needs a terminal; pass --yes")
	}
	fmt.Fprintf(r.Stdout, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(r.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// commandExport resolves the destination against this process's working
// directory before the owner writes it.
func (r Runner) commandExport(ctx context.Context, args []string) int {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return r.forwardOrFail(ctx, ipc.Request{Command: "export", Args: []string{abs}}, actionTimeout)
}

// commandPair asks the owner to pair so the session tracks the device, or
// pairs directly when no owner runs.
func (r Runner) commandPair(ctx context.Context, cfg config.Config, name string, watch bool, logger *slog.Logger) int {
	filters := bluetoothFilters(cfg)
	filters.Name = name
	timeout := filters.ScanTimeout + 15*time.Second

	if resp, ok := r.tryOwner(ctx, ipc.Request{Command: "pair", Args: []string{name}}, timeout); ok {
		fmt.Fprintln(r.Stdout, resp.Message)
		if watch {
			return r.watchOwnerBluetooth(ctx)
		}
		return 0
	} else if resp.Error != "" {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}

	return r.pairDirect(ctx, bluetooth.DefaultPairer(), filters, watch, logger)
}

func (r Runner) pairDirect(ctx context.Context, pairer bluetooth.Pairer, filters bluetooth.Filters, watch bool, logger *slog.Logger) int {
	device, err := pairer.RequestDevice(ctx, filters)
	if err == nil {
		err = pairer.Connect(ctx, device)
	}
	if err != nil {
		if errors.Is(err, bluetooth.ErrUserCancelled) {
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "connected to %s\n", device.Label())
	logger.Info("bluetooth device connected", "device", device.Label(), "address", device.Address)

	if !watch {
		return 0
	}
	err = pairer.Watch(ctx, device, func() {
		fmt.Fprintf(r.Stdout, "%s disconnected\n", device.Label())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// watchOwnerBluetooth polls owner status over one connection until its
// device disconnects.
func (r Runner) watchOwnerBluetooth(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	conn, err := ipc.Dial(ctx, socketPath, forwardTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer conn.Close()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
		}

		resp, err := conn.Call(ipc.Request{Command: "status"})
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: owner went away: %v\n", err)
			return 1
		}
		var snap session.Snapshot
		if err := resp.DecodePayload(&snap); err != nil {
			fmt.Fprintf(r.Stderr, "error: decode status: %v\n", err)
			return 1
		}
		if snap.Bluetooth == "" {
			fmt.Fprintln(r.Stdout, "device disconnected")
			return 0
		}
	}
}

// tryOwner forwards req when an owner is running. ok is false when no owner
// answered or the owner rejected req; the rejection stays in resp.Error.
func (r Runner) tryOwner(ctx context.Context, req ipc.Request, timeout ...time.Duration) (ipc.Response, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, false
	}
	d := forwardTimeout
	if len(timeout) > 0 {
		d = timeout[0]
	}
	resp, handled, err := tryForward(ctx, socketPath, req, d)
	if !handled {
		return ipc.Response{}, false
	}
	if err != nil {
		if resp.Error == "" {
			resp.Error = err.Error()
		}
		return resp, false
	}
	return resp, true
}
