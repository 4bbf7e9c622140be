// Package pipeline turns finalized recognition results into transcript
// entries, one utterance at a time and in finalization order.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/colloquy/internal/enhance"
	"github.com/rbright/colloquy/internal/transcript"
)

// Utterance is one final recognition result plus the settings captured when
// it was finalized.
type Utterance struct {
	Text           string
	Confidence     float64
	Timestamp      time.Time
	NoiseReduction int
	Profile        enhance.Profile
	SpeakerChoice  string
}

// Observer receives pipeline progress. Calls come from the worker goroutine.
// Finished fires once per utterance; appended is false for dropped ones.
type Observer interface {
	Processing(active bool)
	Finished(entry transcript.Entry, appended bool)
}

type noopObserver struct{}

func (noopObserver) Processing(bool)                 {}
func (noopObserver) Finished(transcript.Entry, bool) {}

// Deps are the assembler collaborators.
type Deps struct {
	Enhancer enhance.Enhancer
	Assigner transcript.Assigner
	Log      *transcript.Log
	Observer Observer
	Logger   *slog.Logger
}

// Assembler owns an unbounded FIFO of utterances and the single worker that
// drains it.
type Assembler struct {
	deps Deps

	mu      sync.Mutex
	queue   []Utterance
	running bool
	wake    chan struct{}
}

// New builds an assembler. Enhancer and Log are required.
func New(deps Deps) *Assembler {
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Assigner.Float == nil || deps.Assigner.IntN == nil {
		deps.Assigner = transcript.NewAssigner(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{deps: deps, wake: make(chan struct{}, 1)}
}

// Submit enqueues u. It never blocks.
func (a *Assembler) Submit(u Utterance) {
	a.mu.Lock()
	a.queue = append(a.queue, u)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Pending reports queued plus in-flight utterances.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.queue)
	if a.running {
		n++
	}
	return n
}

// Run drains the queue until ctx is done.
func (a *Assembler) Run(ctx context.Context) error {
	for {
		u, ok := a.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.wake:
				continue
			}
		}

		a.deps.Observer.Processing(true)
		entry, appended, err := a.Process(ctx, u)
		a.done()
		a.deps.Observer.Processing(false)

		if err != nil {
			return err
		}
		a.deps.Observer.Finished(entry, appended)
	}
}

func (a *Assembler) next() (Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return Utterance{}, false
	}
	u := a.queue[0]
	a.queue[0] = Utterance{}
	a.queue = a.queue[1:]
	a.running = true
	return u, true
}

func (a *Assembler) done() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// Process runs normalize, enhance, assign and append for one utterance.
// Utterances that normalize to nothing are dropped (appended=false). An
// enhancement failure other than cancellation falls back to the normalized
// text and original confidence.
func (a *Assembler) Process(ctx context.Context, u Utterance) (transcript.Entry, bool, error) {
	normalized := transcript.Normalize(u.Text, u.NoiseReduction)
	if normalized == "" {
		a.deps.Logger.Debug("dropping empty utterance", "original", u.Text)
		return transcript.Entry{}, false, nil
	}

	result, err := a.deps.Enhancer.Enhance(ctx, normalized, u.Confidence, u.Profile)
	if err != nil {
		if ctx.Err() != nil {
			return transcript.Entry{}, false, ctx.Err()
		}
		a.deps.Logger.Warn("enhancement failed; using normalized text", "error", err, "profile", string(u.Profile))
		result = enhance.Result{Text: normalized, Confidence: u.Confidence}
	}

	var prior *transcript.Entry
	if last, ok := a.deps.Log.Last(); ok {
		prior = &last
	}
	speaker := a.deps.Assigner.Assign(u.SpeakerChoice, prior)

	timestamp := u.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	entry := a.deps.Log.Append(transcript.Entry{
		Text:         result.Text,
		OriginalText: u.Text,
		Confidence:   result.Confidence,
		Speaker:      speaker,
		Timestamp:    timestamp,
	})
	return entry, true, nil
}
