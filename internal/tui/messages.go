package tui

import (
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/transcript"
)

// SnapshotMsg carries a new controller snapshot plus the entries it counts.
type SnapshotMsg struct {
	Snapshot session.Snapshot
	Entries  []transcript.Entry
}

// ReplyMsg carries the outcome of a command issued from the view.
type ReplyMsg struct {
	Command string
	Message string
	Err     error
}
