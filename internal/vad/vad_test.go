package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func observeAll(d *Detector, levels ...float64) []Transition {
	out := make([]Transition, 0, len(levels))
	for _, level := range levels {
		out = append(out, d.Observe(level))
	}
	return out
}

func TestDetectorRequiresConfirmWindows(t *testing.T) {
	d := New(Config{})

	require.Equal(t, []Transition{None, None, None}, observeAll(d, 0.05, 0.001, 0.05))
	require.False(t, d.Speaking())

	require.Equal(t, SpeechStart, d.Observe(0.03))
	require.True(t, d.Speaking())
	require.Equal(t, None, d.Observe(0.5))
}

func TestDetectorEndsAfterSilenceTimeout(t *testing.T) {
	d := New(Config{Threshold: 0.1, ConfirmWindows: 1, SilenceTimeout: 100 * time.Millisecond, Window: 20 * time.Millisecond})

	require.Equal(t, SpeechStart, d.Observe(0.2))
	require.Equal(t, []Transition{None, None, None, None}, observeAll(d, 0, 0, 0, 0))
	// Speech inside the timeout resets the silence run.
	require.Equal(t, None, d.Observe(0.2))
	require.Equal(t, []Transition{None, None, None, None, SpeechEnd}, observeAll(d, 0, 0, 0, 0, 0))
	require.False(t, d.Speaking())
	require.Equal(t, None, d.Observe(0))
}

func TestDetectorDefaultTimeoutIsSixtyWindows(t *testing.T) {
	d := New(DefaultConfig())
	observeAll(d, 1, 1)
	require.True(t, d.Speaking())

	for range 59 {
		require.Equal(t, None, d.Observe(0))
	}
	require.Equal(t, SpeechEnd, d.Observe(0))
}

func TestDetectorReset(t *testing.T) {
	d := New(Config{ConfirmWindows: 1})
	require.Equal(t, SpeechStart, d.Observe(1))
	d.Reset()
	require.False(t, d.Speaking())
	require.Equal(t, SpeechStart, d.Observe(1))
}

func TestTransitionString(t *testing.T) {
	require.Equal(t, "speech-start", SpeechStart.String())
	require.Equal(t, "speech-end", SpeechEnd.String())
	require.Equal(t, "none", None.String())
}
