// Package vad detects speech onset and trailing silence from chunk levels.
package vad

import "time"

const (
	DefaultThreshold      = 0.02
	DefaultConfirmWindows = 2
	DefaultSilenceTimeout = 1200 * time.Millisecond
	DefaultWindow         = 20 * time.Millisecond
)

// Config tunes the detector.
type Config struct {
	Threshold      float64
	ConfirmWindows int
	SilenceTimeout time.Duration
	Window         time.Duration
}

// DefaultConfig returns the detector defaults for 20ms chunks.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		ConfirmWindows: DefaultConfirmWindows,
		SilenceTimeout: DefaultSilenceTimeout,
		Window:         DefaultWindow,
	}
}

// Transition is the detector output for one window.
type Transition int

const (
	None Transition = iota
	SpeechStart
	SpeechEnd
)

func (t Transition) String() string {
	switch t {
	case SpeechStart:
		return "speech-start"
	case SpeechEnd:
		return "speech-end"
	default:
		return "none"
	}
}

// Detector is a level-threshold voice activity detector. Not safe for
// concurrent use.
type Detector struct {
	cfg Config

	speaking     bool
	speechCount  int
	silenceCount int
}

// New builds a detector, filling zero config fields with defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ConfirmWindows <= 0 {
		cfg.ConfirmWindows = def.ConfirmWindows
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = def.SilenceTimeout
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Detector{cfg: cfg}
}

// Speaking reports whether the detector is inside a speech region.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Observe consumes one window's RMS level.
func (d *Detector) Observe(level float64) Transition {
	if level >= d.cfg.Threshold {
		d.silenceCount = 0
		if d.speaking {
			return None
		}
		d.speechCount++
		if d.speechCount >= d.cfg.ConfirmWindows {
			d.speaking = true
			d.speechCount = 0
			return SpeechStart
		}
		return None
	}

	d.speechCount = 0
	if !d.speaking {
		return None
	}
	d.silenceCount++
	if time.Duration(d.silenceCount)*d.cfg.Window >= d.cfg.SilenceTimeout {
		d.speaking = false
		d.silenceCount = 0
		return SpeechEnd
	}
	return None
}

// Reset returns the detector to silence.
func (d *Detector) Reset() {
	d.speaking = false
	d.speechCount = 0
	d.silenceCount = 0
}
