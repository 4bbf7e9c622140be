// Package enhance post-processes normalized utterances before they are logged.
package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Profile names one enhancement model.
type Profile string

const (
	ProfileFast         Profile = "fast"
	ProfileBalanced     Profile = "balanced"
	ProfileAccurate     Profile = "accurate"
	ProfileWhisperTiny  Profile = "whisper-tiny"
	ProfileWhisperBase  Profile = "whisper-base"
	ProfileWhisperSmall Profile = "whisper-small"
)

// Profiles lists every known profile in selector order.
var Profiles = []Profile{
	ProfileFast,
	ProfileBalanced,
	ProfileAccurate,
	ProfileWhisperTiny,
	ProfileWhisperBase,
	ProfileWhisperSmall,
}

// Simulated model latencies. They stand in for a real inference call and can
// be overridden per profile through NewSimulator.
const (
	LatencyFast         = 50 * time.Millisecond
	LatencyBalanced     = 150 * time.Millisecond
	LatencyAccurate     = 300 * time.Millisecond
	LatencyWhisperTiny  = 100 * time.Millisecond
	LatencyWhisperBase  = 200 * time.Millisecond
	LatencyWhisperSmall = 400 * time.Millisecond
	LatencyDefault      = 100 * time.Millisecond
)

// ConfidenceBoost is added to confidence by high-accuracy profiles.
const ConfidenceBoost = 0.05

// DefaultLatencies returns a fresh profile -> latency table.
func DefaultLatencies() map[Profile]time.Duration {
	return map[Profile]time.Duration{
		ProfileFast:         LatencyFast,
		ProfileBalanced:     LatencyBalanced,
		ProfileAccurate:     LatencyAccurate,
		ProfileWhisperTiny:  LatencyWhisperTiny,
		ProfileWhisperBase:  LatencyWhisperBase,
		ProfileWhisperSmall: LatencyWhisperSmall,
	}
}

// ParseProfile validates a profile name.
func ParseProfile(raw string) (Profile, error) {
	candidate := Profile(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range Profiles {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown enhancement model %q", raw)
}

// HighAccuracy reports whether the profile applies punctuation and a confidence boost.
func (p Profile) HighAccuracy() bool {
	return p == ProfileAccurate || p == ProfileWhisperSmall
}

// Result is the enhanced text and confidence.
type Result struct {
	Text       string
	Confidence float64
}

// Enhancer transforms one utterance. Implementations may block and must
// honor ctx cancellation.
type Enhancer interface {
	Enhance(ctx context.Context, text string, confidence float64, profile Profile) (Result, error)
}

// Apply is the deterministic transform shared by every backend.
func Apply(text string, confidence float64, profile Profile) Result {
	if !profile.HighAccuracy() || text == "" {
		return Result{Text: text, Confidence: confidence}
	}
	return Result{Text: punctuate(text), Confidence: min(confidence+ConfidenceBoost, 1.0)}
}

// punctuate upper-cases the first rune and terminates the sentence.
func punctuate(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	out := string(unicode.ToUpper(r)) + text[size:]
	switch out[len(out)-1] {
	case '.', '!', '?':
		return out
	default:
		return out + "."
	}
}

// Simulator sleeps a per-profile latency and then applies Apply.
type Simulator struct {
	latencies map[Profile]time.Duration
	after     func(time.Duration) <-chan time.Time
}

// NewSimulator builds a simulator from the defaults plus overrides.
func NewSimulator(overrides map[Profile]time.Duration) *Simulator {
	latencies := DefaultLatencies()
	for p, d := range overrides {
		latencies[p] = d
	}
	return &Simulator{latencies: latencies, after: time.After}
}

// Latency returns the wait for profile, LatencyDefault when unknown.
func (s *Simulator) Latency(profile Profile) time.Duration {
	if d, ok := s.latencies[profile]; ok {
		return d
	}
	return LatencyDefault
}

// Enhance waits the profile latency, returning ctx.Err() if cancelled first.
func (s *Simulator) Enhance(ctx context.Context, text string, confidence float64, profile Profile) (Result, error) {
	if d := s.Latency(profile); d > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-s.after(d):
		}
	}
	return Apply(text, confidence, profile), nil
}
