// Package cli parses the colloquy command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun        Command = "run"
	CommandToggle     Command = "toggle"
	CommandPress      Command = "press"
	CommandRelease    Command = "release"
	CommandMode       Command = "mode"
	CommandSpeaker    Command = "speaker"
	CommandSpeakerAdd Command = "speaker-add"
	CommandSpeakers   Command = "speakers"
	CommandStatus     Command = "status"
	CommandCopy       Command = "copy"
	CommandExport     Command = "export"
	CommandClear      Command = "clear"
	CommandSet        Command = "set"
	CommandSettings   Command = "settings"
	CommandDevices    Command = "devices"
	CommandPair       Command = "pair"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// arity bounds positional arguments per command.
type arity struct{ min, max int }

var validCommands = map[Command]arity{
	CommandRun:        {0, 0},
	CommandToggle:     {0, 0},
	CommandPress:      {0, 0},
	CommandRelease:    {0, 0},
	CommandMode:       {1, 1},
	CommandSpeaker:    {1, 1},
	CommandSpeakerAdd: {1, -1},
	CommandSpeakers:   {0, 0},
	CommandStatus:     {0, 0},
	CommandCopy:       {0, 0},
	CommandExport:     {0, 1},
	CommandClear:      {0, 0},
	CommandSet:        {2, -1},
	CommandSettings:   {0, 0},
	CommandDevices:    {0, 0},
	CommandPair:       {0, -1},
	CommandDoctor:     {0, 0},
	CommandVersion:    {0, 0},
	CommandHelp:       {0, 0},
}

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	ShowHelp   bool
	Yes        bool
	Verbose    bool
	Watch      bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	seenCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			continue
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
			seenCommand = true
			continue
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
			continue
		case "-y", "--yes":
			parsed.Yes = true
			continue
		case "-v", "--verbose":
			parsed.Verbose = true
			continue
		case "--watch":
			parsed.Watch = true
			continue
		}

		if strings.HasPrefix(arg, "-") {
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}

		if seenCommand {
			parsed.Args = append(parsed.Args, arg)
			continue
		}

		cmd := Command(arg)
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", arg)
		}
		parsed.Command = cmd
		parsed.ShowHelp = cmd == CommandHelp
		seenCommand = true
	}

	if parsed.ShowHelp {
		return parsed, nil
	}

	bounds := validCommands[parsed.Command]
	if len(parsed.Args) < bounds.min {
		return Parsed{}, fmt.Errorf("command %q requires %d argument(s)", parsed.Command, bounds.min)
	}
	if bounds.max >= 0 && len(parsed.Args) > bounds.max {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
	}
	if parsed.Watch && parsed.Command != CommandPair {
		return Parsed{}, errors.New("--watch only applies to pair")
	}

	return parsed, nil
}

// Joined returns the positional arguments from index i onward as one value,
// so names and setting values need no shell quoting.
func (p Parsed) Joined(i int) string {
	if i >= len(p.Args) {
		return ""
	}
	return strings.Join(p.Args[i:], " ")
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--yes] [--verbose] <command> [args]

Commands:
  run                  Own the session: capture, transcribe and show the dialog view
  toggle               Start or stop capture
  press                Begin a push-to-talk hold
  release              End a push-to-talk hold
  mode MODE            Switch mode: continuous, push-to-talk, voice-activated
  speaker ID           Select a speaker for new entries (auto, speaker-1, ...)
  speaker-add NAME     Register a custom speaker and select it
  speakers             List known speakers
  status               Print state, mode, entry count and status text
  copy                 Copy the formatted transcript to the clipboard
  export [PATH]        Write the transcript as JSON (default ./transcript_<date>.json)
  clear                Clear the transcript after confirmation
  set KEY VALUE        Change a setting
  settings             Print settings
  devices              List available input devices
  pair [NAME]          Connect a Bluetooth microphone
  doctor               Run configuration and environment checks
  version              Print version information
  help                 Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/colloquy/config.jsonc)
  -y, --yes       Skip the clear confirmation prompt
  -v, --verbose   Mirror logs to stderr
  --watch         With pair, wait until the device disconnects
  -h, --help      Show help
  --version       Show version

Environment:
  COLLOQUY_CONFIG  Config file path when --config is not given
`, binaryName)
}
