package session

import (
	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/transcript"
)

// Command is one user action delivered to the controller.
type Command interface {
	commandName() string
}

// Toggle starts or stops capture in continuous and voice-activated modes.
type Toggle struct{}

// Press begins a push-to-talk hold.
type Press struct{}

// Release ends a push-to-talk hold. Pointer-leave and cancel map here too.
type Release struct{}

// SetMode switches the recording mode, stopping capture first.
type SetMode struct{ Mode fsm.Mode }

// SelectSpeaker picks an explicit speaker id, name, or auto.
type SelectSpeaker struct{ Choice string }

// AddSpeaker registers a custom speaker and selects it.
type AddSpeaker struct{ Name string }

// ChangeSetting applies and persists one setting.
type ChangeSetting struct{ Key, Value string }

// Clear empties the transcript after asking Confirmer.
type Clear struct{ Confirmer transcript.Confirmer }

// Copy puts the formatted transcript on the clipboard.
type Copy struct{}

// Export writes the JSON export. An empty Path uses the dated default name.
type Export struct{ Path string }

// Pair requests, connects and watches a Bluetooth device.
type Pair struct{ Name string }

func (Toggle) commandName() string        { return "toggle" }
func (Press) commandName() string         { return "press" }
func (Release) commandName() string       { return "release" }
func (SetMode) commandName() string       { return "mode" }
func (SelectSpeaker) commandName() string { return "speaker" }
func (AddSpeaker) commandName() string    { return "speaker-add" }
func (ChangeSetting) commandName() string { return "set" }
func (Clear) commandName() string         { return "clear" }
func (Copy) commandName() string          { return "copy" }
func (Export) commandName() string        { return "export" }
func (Pair) commandName() string          { return "pair" }

// Reply is the outcome of one command.
type Reply struct {
	Message string
	Payload any
}
