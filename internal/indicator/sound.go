package indicator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueSuccess
	cueWarning
	cueError
)

const (
	cueSampleRate = 16000
	cueVolume     = 0.18
	cueGap        = 22 * time.Millisecond
	cueMaxRamp    = 5 * time.Millisecond
)

type tone struct {
	hz       float64
	duration time.Duration
}

// cueTones lists the notes of each cue in play order.
var cueTones = map[cueKind][]tone{
	cueStart:   {{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
	cueStop:    {{620, 120 * time.Millisecond}},
	cueSuccess: {{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}},
	cueWarning: {{660, 80 * time.Millisecond}, {660, 80 * time.Millisecond}},
	cueError:   {{480, 75 * time.Millisecond}, {360, 90 * time.Millisecond}},
}

var cuePCM = sync.OnceValue(func() map[cueKind][]int16 {
	pcm := make(map[cueKind][]int16, len(cueTones))
	for kind, tones := range cueTones {
		pcm[kind] = synthesizeCue(tones, cueVolume)
	}
	return pcm
})

func cueSamples(kind cueKind) []int16 {
	return cuePCM()[kind]
}

func emitCue(kind cueKind) error {
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playPCM(samples)
}

// playPCM plays mono 16 kHz samples on the default sink and blocks until
// they drain.
func playPCM(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("colloquy"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		pulse.Int16Reader(pcmReader(samples)),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("colloquy cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// pcmReader feeds samples into playback buffers and reports EndOfData with
// the final chunk.
func pcmReader(samples []int16) func([]int16) (int, error) {
	rest := samples
	return func(buf []int16) (int, error) {
		n := copy(buf, rest)
		rest = rest[n:]
		if len(rest) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}

func synthesizeCue(tones []tone, volume float64) []int16 {
	if len(tones) == 0 {
		return nil
	}
	gap := samplesForDuration(cueGap)

	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, synthesizeTone(t, volume)...)
	}
	return pcm
}

// synthesizeTone renders a sine with raised-cosine attack and release ramps
// of at most cueMaxRamp, so cues start and end at zero.
func synthesizeTone(t tone, volume float64) []int16 {
	n := samplesForDuration(t.duration)
	if n <= 0 || t.hz <= 0 || volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), samplesForDuration(cueMaxRamp))
	pcm := make([]int16, n)
	for i := range pcm {
		edge := min(i, n-1-i)
		envelope := 1.0
		if edge < ramp {
			envelope = 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(ramp))
		}
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
