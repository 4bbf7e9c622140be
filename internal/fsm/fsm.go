// Package fsm defines the capture state machine and recording modes.
package fsm

import (
	"fmt"
	"strings"
)

type State string

type Event string

type Mode string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
)

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
)

const (
	ModeContinuous     Mode = "continuous"
	ModePushToTalk     Mode = "push-to-talk"
	ModeVoiceActivated Mode = "voice-activated"
)

// Modes lists recording modes in selector order.
var Modes = []Mode{ModeContinuous, ModePushToTalk, ModeVoiceActivated}

// Transition applies one capture event. The mode is orthogonal and never
// changes here.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

// ParseMode accepts canonical names plus a few short aliases.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "continuous", "cont":
		return ModeContinuous, nil
	case "push-to-talk", "ptt", "push":
		return ModePushToTalk, nil
	case "voice-activated", "vad", "voice":
		return ModeVoiceActivated, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want continuous, push-to-talk, voice-activated)", raw)
	}
}

// Next returns the mode following m in selector order.
func (m Mode) Next() Mode {
	for i, mode := range Modes {
		if mode == m {
			return Modes[(i+1)%len(Modes)]
		}
	}
	return ModeContinuous
}

// StatusText is the user-facing hint shown after selecting the mode.
func (m Mode) StatusText() string {
	switch m {
	case ModePushToTalk:
		return "Push to Talk mode - Hold to speak"
	case ModeVoiceActivated:
		return "Voice Activated mode - Auto-detects speech"
	default:
		return "Continuous mode - Click to start/stop"
	}
}
