// Package indicator surfaces capture state and notices on the desktop and
// plays short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/hypr"
)

// Level grades a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one transient user-facing message.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Controller is the session-facing indicator contract.
type Controller interface {
	ShowCapturing(context.Context)
	ShowWaiting(context.Context)
	ShowNotice(context.Context, Notice)
	CueStop(context.Context)
	Hide(context.Context)
}

const (
	persistentTimeoutMS = 300000
	noticeTimeoutMS     = 2000
	defaultErrorMS      = 1200
)

// Notifier routes indicator output via Hyprland or desktop DBus based on
// config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// NewNotifier creates an indicator controller from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// look is how one indicator state renders on each backend.
type look struct {
	hyprIcon    int
	color       string
	desktopIcon string
	urgency     byte
}

var (
	lookCapturing = look{hypr.IconInfo, "rgb(89b4fa)", "audio-input-microphone", urgencyNormal}
	lookWaiting   = look{hypr.IconHint, "rgb(cba6f7)", "audio-input-microphone", urgencyLow}
	lookInfo      = look{hypr.IconInfo, "rgb(89b4fa)", "dialog-information", urgencyLow}
	lookSuccess   = look{hypr.IconOK, "rgb(a6e3a1)", "emblem-ok-symbolic", urgencyLow}
	lookWarning   = look{hypr.IconWarning, "rgb(f9e2af)", "dialog-warning", urgencyNormal}
	lookError     = look{hypr.IconError, "rgb(f38ba8)", "dialog-error", urgencyCritical}
)

// ShowCapturing signals capture start and emits the start cue.
func (n *Notifier) ShowCapturing(ctx context.Context) {
	n.playCue(cueStart)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, lookCapturing, persistentTimeoutMS, n.messages.capturing)
	})
}

// ShowWaiting signals an armed microphone with no active speech.
func (n *Notifier) ShowWaiting(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, lookWaiting, persistentTimeoutMS, n.messages.waiting)
	})
}

// ShowNotice displays a transient notice. Errors use the configured error
// timeout.
func (n *Notifier) ShowNotice(ctx context.Context, notice Notice) {
	switch notice.Level {
	case LevelError:
		n.playCue(cueError)
	case LevelWarning:
		n.playCue(cueWarning)
	case LevelSuccess:
		n.playCue(cueSuccess)
	}
	if !n.cfg.Enable {
		return
	}

	text := notice.Text
	l, timeout := lookInfo, noticeTimeoutMS
	switch notice.Level {
	case LevelSuccess:
		l = lookSuccess
	case LevelWarning:
		l = lookWarning
	case LevelError:
		l = lookError
		timeout = n.cfg.ErrorTimeoutMS
		if timeout <= 0 {
			timeout = defaultErrorMS
		}
		if text == "" {
			text = n.messages.errorText
		}
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, l, timeout, text)
	})
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

func (n *Notifier) notify(ctx context.Context, l look, timeoutMS int, text string) error {
	if n.desktop() {
		return n.notifyDesktop(ctx, l, timeoutMS, text)
	}
	return hypr.Notify(ctx, l.hyprIcon, timeoutMS, l.color, text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktop() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop replaces the previous desktop notification, if any, and
// keeps the new ID for the next update or dismiss.
func (n *Notifier) notifyDesktop(ctx context.Context, l look, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "colloquy"
	}

	id, err := desktopNotify(ctx, desktopMessage{
		AppName:   appName,
		ReplaceID: replaceID,
		Icon:      l.desktopIcon,
		Summary:   text,
		Urgency:   l.urgency,
		TimeoutMS: timeoutMS,
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
