package tui

// Key bindings handled in handleKey.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeySpace      = " "
	KeyMode       = "m"
	KeySpeaker    = "s"
	KeyModel      = "a"
	KeyNoiseUp    = "]"
	KeyNoiseDown  = "["
	KeyCopy       = "c"
	KeyExport     = "e"
	KeyClear      = "x"
	KeyPair       = "b"
	KeyConfirmYes = "y"
	KeyConfirmNo  = "n"
	KeyEscape     = "esc"
)

// noiseStep is the noise reduction change per key press.
const noiseStep = 10
