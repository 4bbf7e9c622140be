package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rbright/colloquy/internal/bluetooth"
	"github.com/rbright/colloquy/internal/indicator"
	"github.com/rbright/colloquy/internal/output"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"
)

func (c *Controller) selectSpeaker(choice string) (Reply, error) {
	id, err := c.deps.Speakers.Resolve(choice)
	if err != nil {
		return Reply{}, err
	}
	c.speaker = id
	if id == transcript.Auto {
		return Reply{Message: "speaker: auto"}, nil
	}
	return Reply{Message: "speaker: " + c.deps.Speakers.Name(id)}, nil
}

func (c *Controller) addSpeaker(name string) (Reply, error) {
	s, err := c.deps.Speakers.Add(name)
	if err != nil {
		return Reply{}, err
	}
	c.speaker = s.ID
	c.logger.Info("speaker added", "id", s.ID, "name", s.Name)
	return Reply{Message: "speaker added: " + s.Name, Payload: s}, nil
}

// changeSetting applies one setting and persists the whole set. A failed
// save keeps the new value in memory.
func (c *Controller) changeSetting(key string, value string) (Reply, error) {
	next, err := c.settings.Apply(key, value)
	if err != nil {
		return Reply{}, err
	}
	canonical, _ := settings.CanonicalKey(key)
	prev := c.settings
	c.settings = next
	c.noiseReduction.Store(int64(next.NoiseReduction))

	if c.deps.Store != nil {
		if err := c.deps.Store.Save(c.uiCtx(), next); err != nil {
			c.logger.Warn("settings save failed", "error", err, "key", canonical)
		}
	}
	if next.NativeRecognition && !prev.NativeRecognition {
		c.raise(indicator.Notice{Level: indicator.LevelInfo, Text: "Native recognition enabled"})
	}

	rendered, _ := next.Get(canonical)
	c.logger.Info("setting changed", "key", canonical, "value", rendered)
	return Reply{Message: canonical + " = " + rendered, Payload: next}, nil
}

func (c *Controller) copyTranscript(ctx context.Context) (Reply, error) {
	entries := c.deps.Log.All()
	if len(entries) == 0 {
		return Reply{}, output.ErrNothingToCopy
	}
	if c.deps.Clipboard == nil {
		c.notify(indicator.Notice{Level: indicator.LevelError, Text: "Failed to copy transcript"})
		return Reply{}, errors.New("no clipboard configured")
	}

	text := transcript.FormatLines(entries, c.deps.Speakers)
	if err := c.deps.Clipboard.Copy(ctx, text); err != nil {
		c.notify(indicator.Notice{Level: indicator.LevelError, Text: "Failed to copy transcript"})
		return Reply{}, err
	}
	c.notify(indicator.Notice{Level: indicator.LevelSuccess, Text: "Transcript copied to clipboard"})
	return Reply{Message: fmt.Sprintf("copied %d entries", len(entries))}, nil
}

// export writes the structured export. A directory path receives the dated
// default file name.
func (c *Controller) export(path string) (Reply, error) {
	now := c.deps.Now()
	switch {
	case path == "":
		path = transcript.ExportFilename(now)
	case isDir(path):
		path = filepath.Join(path, transcript.ExportFilename(now))
	}

	entries := c.deps.Log.All()
	doc := transcript.BuildExport(entries, c.deps.Speakers, c.Snapshot().Settings, now)
	data, err := transcript.MarshalExport(doc)
	if err != nil {
		return Reply{}, err
	}
	written, err := c.deps.WriteFile(path, data)
	if err != nil {
		c.notify(indicator.Notice{Level: indicator.LevelError, Text: "Export failed: " + err.Error()})
		return Reply{}, err
	}
	c.notify(indicator.Notice{Level: indicator.LevelSuccess, Text: "Transcript exported"})
	return Reply{Message: written, Payload: map[string]any{"path": written, "entries": len(entries)}}, nil
}

func (c *Controller) clear(ctx context.Context, confirmer transcript.Confirmer) (Reply, error) {
	if confirmer == nil {
		return Reply{}, ErrConfirmationRequired
	}
	cleared, err := c.deps.Log.Clear(ctx, confirmer)
	if err != nil {
		return Reply{}, err
	}
	if !cleared {
		return Reply{Message: "nothing cleared"}, nil
	}
	c.notify(indicator.Notice{Level: indicator.LevelSuccess, Text: "Transcript cleared"})
	return Reply{Message: "transcript cleared"}, nil
}

// pair requests and connects a device, then watches it for disconnects for
// the lifetime of the controller.
func (c *Controller) pair(ctx context.Context, name string) (Reply, error) {
	if c.deps.Pairer == nil {
		c.notify(indicator.Notice{Level: indicator.LevelWarning, Text: "Bluetooth not supported"})
		return Reply{}, bluetooth.ErrUnsupported
	}

	filters := c.deps.Bluetooth
	filters.Name = name
	device, err := c.deps.Pairer.RequestDevice(ctx, filters)
	if err == nil {
		err = c.deps.Pairer.Connect(ctx, device)
	}
	if err != nil {
		c.pairFailed(err)
		return Reply{}, err
	}

	label := device.Label()
	c.inbox.post(bluetoothChanged{label: label})
	c.notify(indicator.Notice{Level: indicator.LevelSuccess, Text: "Connected to " + label})

	go func() {
		err := c.deps.Pairer.Watch(c.ctx, device, func() {
			c.inbox.post(bluetoothChanged{label: ""})
			c.logger.Info("bluetooth device disconnected", "device", label)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, bluetooth.ErrUserCancelled) {
			c.logger.Warn("bluetooth watch stopped", "error", err, "device", label)
		}
	}()
	return Reply{Message: "connected to " + label, Payload: device}, nil
}

func (c *Controller) pairFailed(err error) {
	switch {
	case errors.Is(err, bluetooth.ErrUserCancelled), errors.Is(err, context.Canceled):
		c.logger.Info("bluetooth request cancelled")
	case errors.Is(err, bluetooth.ErrUnsupported):
		c.notify(indicator.Notice{Level: indicator.LevelWarning, Text: "Bluetooth not supported"})
	case errors.Is(err, bluetooth.ErrNotFound):
		c.notify(indicator.Notice{Level: indicator.LevelWarning, Text: "BLE connection failed: " + err.Error()})
	default:
		c.notify(indicator.Notice{Level: indicator.LevelError, Text: "BLE connection failed: " + err.Error()})
	}
}

// notify hands a notice raised off-loop to the event loop.
func (c *Controller) notify(notice indicator.Notice) {
	c.inbox.post(noticeRaised{notice: notice})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
