// Package tui renders the owner's terminal dialog view: the speaker-labelled
// transcript, the interim line, level bars and status, with key bindings
// mapped onto session commands.
package tui

import (
	"context"
	"errors"
	"strconv"

	"github.com/rbright/colloquy/internal/enhance"
	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of the session controller the view drives.
type Controller interface {
	Do(ctx context.Context, cmd session.Command) (session.Reply, error)
	Subscribe() (<-chan session.Snapshot, func())
	Entries() []transcript.Entry
	Speakers() *transcript.Registry
}

// Model is the root bubbletea model.
type Model struct {
	ctx      context.Context
	ctl      Controller
	updates  <-chan session.Snapshot
	speakers *transcript.Registry

	snap    session.Snapshot
	entries []transcript.Entry

	width      int
	height     int
	confirming bool
	replyText  string
	errText    string
}

// New builds a model reading snapshots from updates.
func New(ctx context.Context, ctl Controller, updates <-chan session.Snapshot) Model {
	return Model{
		ctx:      ctx,
		ctl:      ctl,
		updates:  updates,
		speakers: ctl.Speakers(),
	}
}

// Run shows the dialog view until the user quits or ctx is done.
func Run(ctx context.Context, ctl Controller, opts ...tea.ProgramOption) error {
	updates, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(New(ctx, ctl, updates), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.ctx, m.ctl, m.updates)
}

func waitForSnapshot(ctx context.Context, ctl Controller, updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return tea.Quit()
		case snap := <-updates:
			return SnapshotMsg{Snapshot: snap, Entries: ctl.Entries()}
		}
	}
}

func (m Model) do(name string, cmd session.Command) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.ctl.Do(m.ctx, cmd)
		return ReplyMsg{Command: name, Message: reply.Message, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.entries = msg.Entries
		return m, waitForSnapshot(m.ctx, m.ctl, m.updates)

	case ReplyMsg:
		if msg.Err != nil {
			m.errText = msg.Command + ": " + msg.Err.Error()
			m.replyText = ""
		} else {
			m.errText = ""
			m.replyText = msg.Message
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirming {
		switch key {
		case KeyConfirmYes:
			m.confirming = false
			accept := transcript.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
			return m, m.do("clear", session.Clear{Confirmer: accept})
		case KeyConfirmNo, KeyEscape:
			m.confirming = false
		case KeyCtrlC:
			return m, tea.Quit
		}
		return m, nil
	}

	switch key {
	case KeyQuit, KeyCtrlC:
		return m, tea.Quit

	case KeySpace:
		// Terminals deliver no key-up events, so space alternates the
		// push-to-talk hold.
		if m.snap.Mode == fsm.ModePushToTalk {
			if m.snap.Holding {
				return m, m.do("release", session.Release{})
			}
			return m, m.do("press", session.Press{})
		}
		return m, m.do("toggle", session.Toggle{})

	case KeyMode:
		return m, m.do("mode", session.SetMode{Mode: m.snap.Mode.Next()})

	case KeySpeaker:
		return m, m.do("speaker", session.SelectSpeaker{Choice: m.speakers.Next(m.snap.Speaker)})

	case KeyModel:
		next := nextProfile(m.snap.Settings.EnhancementModel)
		return m, m.do("set", session.ChangeSetting{Key: settings.KeyEnhancementModel, Value: string(next)})

	case KeyNoiseUp, KeyNoiseDown:
		delta := noiseStep
		if key == KeyNoiseDown {
			delta = -noiseStep
		}
		level := min(100, max(0, m.snap.Settings.NoiseReduction+delta))
		return m, m.do("set", session.ChangeSetting{Key: settings.KeyNoiseReduction, Value: strconv.Itoa(level)})

	case KeyCopy:
		return m, m.do("copy", session.Copy{})

	case KeyExport:
		return m, m.do("export", session.Export{})

	case KeyClear:
		if len(m.entries) > 0 {
			m.confirming = true
		}
		return m, nil

	case KeyPair:
		return m, m.do("pair", session.Pair{})
	}
	return m, nil
}

func nextProfile(current enhance.Profile) enhance.Profile {
	for i, p := range enhance.Profiles {
		if p == current {
			return enhance.Profiles[(i+1)%len(enhance.Profiles)]
		}
	}
	return enhance.Profiles[0]
}
