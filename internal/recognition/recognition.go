// Package recognition adapts a streaming speech recognizer into typed events.
package recognition

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotStarted     = errors.New("recognition session not started")
	ErrAlreadyStarted = errors.New("recognition session already started")
)

// Error codes that callers treat as routine session endings.
const (
	CodeNoSpeech = "no-speech"
	CodeAborted  = "aborted"
	CodeNetwork  = "network"
)

// EventKind identifies a recognizer event.
type EventKind string

const (
	EventStart  EventKind = "start"
	EventEnd    EventKind = "end"
	EventResult EventKind = "result"
	EventError  EventKind = "error"
)

// Alternative is one candidate transcript for a result slot.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one recognition slot. Only the first alternative is used.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Best returns the first alternative, if any.
func (r Result) Best() (Alternative, bool) {
	if len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// Event is delivered to the emit callback passed to Start.
type Event struct {
	Kind        EventKind
	Results     []Result
	ResultIndex int
	Code        string
}

// Routine reports whether an error event should be swallowed silently.
func (e Event) Routine() bool {
	return e.Kind == EventError && (e.Code == CodeNoSpeech || e.Code == CodeAborted)
}

// Options configure one recognition session.
type Options struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	SampleRateHertz int
}

// DefaultOptions returns session options for 16kHz mono dictation.
func DefaultOptions(language string) Options {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en-US"
	}
	return Options{
		Language:        language,
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 1,
		SampleRateHertz: 16000,
	}
}

// Recognizer is one streaming recognition backend. Start returns once the
// session is open; events arrive on emit from a backend goroutine until an
// EventEnd, which is always the last event of a session.
type Recognizer interface {
	Start(ctx context.Context, opts Options, emit func(Event)) error
	SendAudio(chunk []byte) error
	Stop() error
}

// Interim joins non-final transcripts from resultIndex onward, and returns the
// finals found in the same range.
func Interim(ev Event) (interim string, finals []Alternative) {
	start := max(ev.ResultIndex, 0)
	var parts []string
	for i := start; i < len(ev.Results); i++ {
		alt, ok := ev.Results[i].Best()
		if !ok {
			continue
		}
		if ev.Results[i].IsFinal {
			finals = append(finals, alt)
			continue
		}
		if text := cleanSegment(alt.Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), finals
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
