// Package session owns the recording lifecycle: the mode state machine,
// microphone capture, recognition sessions, and the interim line.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/bluetooth"
	"github.com/rbright/colloquy/internal/enhance"
	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/indicator"
	"github.com/rbright/colloquy/internal/output"
	"github.com/rbright/colloquy/internal/pipeline"
	"github.com/rbright/colloquy/internal/recognition"
	"github.com/rbright/colloquy/internal/settings"
	"github.com/rbright/colloquy/internal/transcript"
	"github.com/rbright/colloquy/internal/vad"
)

var (
	ErrUnknownCommand       = errors.New("unknown command")
	ErrStopped              = errors.New("session controller stopped")
	ErrConfirmationRequired = errors.New("clear requires confirmation")
)

// Status dot kinds.
const (
	StatusReady     = "ready"
	StatusRecording = "recording"
)

// Status texts.
const (
	TextReady     = "Ready to transcribe"
	TextListening = "Listening..."
	TextWaiting   = "Waiting for speech..."
	NoBluetooth   = "No BLE device connected"
)

const (
	// DefaultRestartDelay is the pause before reopening an ended recognition session.
	DefaultRestartDelay = 100 * time.Millisecond
	// MaxRestartDelay caps the exponential restart backoff.
	MaxRestartDelay = 5 * time.Second
)

// Status is the status dot plus its text.
type Status struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Snapshot is a read-only view of controller state for the dialog view and
// the status command.
type Snapshot struct {
	State       fsm.State         `json:"state"`
	Mode        fsm.Mode          `json:"mode"`
	Status      Status            `json:"status"`
	Holding     bool              `json:"holding"`
	Recognizing bool              `json:"recognizing"`
	Speaking    bool              `json:"speaking"`
	Interim     string            `json:"interim,omitempty"`
	Processing  bool              `json:"processing"`
	Pending     int               `json:"pending"`
	Count       int               `json:"count"`
	Speaker     string            `json:"speaker"`
	Device      string            `json:"device,omitempty"`
	Bluetooth   string            `json:"bluetooth,omitempty"`
	Settings    settings.Settings `json:"settings"`
	Notice      indicator.Notice  `json:"notice"`
	NoticeSeq   int               `json:"noticeSeq"`
	Bars        []audio.Bar       `json:"-"`
}

// Clipboard receives formatted transcript text.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

// SettingsStore persists settings changes.
type SettingsStore interface {
	Save(ctx context.Context, s settings.Settings) error
}

// Deps are the controller collaborators. Nil fields fall back to inert or
// default implementations.
type Deps struct {
	Logger     *slog.Logger
	Microphone audio.Microphone
	Recognizer recognition.Recognizer
	Enhancer   enhance.Enhancer
	Log        *transcript.Log
	Speakers   *transcript.Registry
	Assigner   transcript.Assigner
	Settings   settings.Settings
	Store      SettingsStore
	Indicator  indicator.Controller
	Clipboard  Clipboard
	Pairer     bluetooth.Pairer
	WriteFile  func(path string, data []byte) (string, error)
	Now        func() time.Time

	RestartDelay  time.Duration
	VAD           vad.Config
	AudioFallback string
	Bluetooth     bluetooth.Filters
}

// Controller runs one event loop that owns every piece of mutable session
// state. Commands, recognizer events, audio frames and pipeline progress all
// arrive as messages on one mailbox.
type Controller struct {
	deps      Deps
	logger    *slog.Logger
	inbox     *mailbox
	calls     *mailbox
	assembler *pipeline.Assembler

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	noiseReduction atomic.Int64

	// Loop-owned state.
	state           fsm.State
	mode            fsm.Mode
	holding         bool
	stream          audio.Stream
	captureGen      int
	recGen          int
	recognizing     bool
	restartAttempts int
	restartTimer    *time.Timer
	detector        *vad.Detector
	speaking        bool
	interim         string
	interimSeq      int
	pendingClears   []int
	processing      bool
	bars            []audio.Bar
	status          Status
	settings        settings.Settings
	speaker         string
	device          string
	bluetooth       string
	notice          indicator.Notice
	noticeSeq       int

	snapMu sync.RWMutex
	snap   Snapshot

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// New constructs a controller with safe default fallbacks.
func New(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Microphone == nil {
		deps.Microphone = unavailableMicrophone{}
	}
	if deps.Recognizer == nil {
		deps.Recognizer = unavailableRecognizer{}
	}
	if deps.Enhancer == nil {
		deps.Enhancer = enhance.NewSimulator(nil)
	}
	if deps.Log == nil {
		deps.Log = transcript.NewLog()
	}
	if deps.Speakers == nil {
		deps.Speakers = transcript.NewRegistry()
	}
	if deps.Settings == (settings.Settings{}) {
		deps.Settings = settings.Defaults()
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.WriteFile == nil {
		deps.WriteFile = output.WriteFile
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RestartDelay <= 0 {
		deps.RestartDelay = DefaultRestartDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:     deps,
		logger:   deps.Logger,
		inbox:    newMailbox(),
		calls:    newMailbox(),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		state:    fsm.StateIdle,
		mode:     fsm.ModeContinuous,
		detector: vad.New(deps.VAD),
		bars:     audio.Baseline(),
		status:   Status{Kind: StatusReady, Text: TextReady},
		settings: deps.Settings,
		speaker:  transcript.Auto,
		subs:     make(map[int]chan Snapshot),
	}
	c.noiseReduction.Store(int64(deps.Settings.NoiseReduction))
	c.assembler = pipeline.New(pipeline.Deps{
		Enhancer: deps.Enhancer,
		Assigner: deps.Assigner,
		Log:      deps.Log,
		Observer: pipelineObserver{inbox: c.inbox},
		Logger:   deps.Logger,
	})
	c.publish()
	return c
}

type (
	request struct {
		cmd   Command
		reply chan outcome
	}
	outcome struct {
		reply Reply
		err   error
	}
	recognizerEvent struct {
		gen int
		ev  recognition.Event
	}
	recognitionStarted struct {
		gen int
		err error
	}
	audioFrame struct {
		gen   int
		level float64
		bars  []audio.Bar
	}
	restartDue        struct{ gen int }
	processingChanged struct{ active bool }
	utteranceFinished struct {
		entry    transcript.Entry
		appended bool
	}
	noticeRaised     struct{ notice indicator.Notice }
	bluetoothChanged struct{ label string }
)

type pipelineObserver struct {
	inbox *mailbox
}

func (o pipelineObserver) Processing(active bool) {
	o.inbox.post(processingChanged{active: active})
}

func (o pipelineObserver) Finished(entry transcript.Entry, appended bool) {
	o.inbox.post(utteranceFinished{entry: entry, appended: appended})
}

// Run drives the event loop and the pipeline worker until ctx is done.
// Capture is stopped on the way out.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	defer c.cancel()

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := c.assembler.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("pipeline worker stopped", "error", err)
		}
	}()

	quit := make(chan struct{})
	callsDone := make(chan struct{})
	go func() {
		defer close(callsDone)
		c.runRecognizerCalls(quit)
	}()

	c.logger.Info("session controller started", "mode", string(c.mode))
	for {
		select {
		case <-c.ctx.Done():
			c.stopCapture()
			c.publish()
			close(quit)
			<-callsDone
			<-pipelineDone
			c.logger.Info("session controller stopped", "entries", c.deps.Log.Count())
			return nil
		case <-c.inbox.wake:
			for _, msg := range c.inbox.drain() {
				c.dispatch(msg)
			}
			c.publish()
		}
	}
}

// Do executes one command. Commands that touch capture state are serialized
// through the event loop; transcript actions run on the caller's goroutine.
func (c *Controller) Do(ctx context.Context, cmd Command) (Reply, error) {
	switch cmd := cmd.(type) {
	case Copy:
		return c.copyTranscript(ctx)
	case Export:
		return c.export(cmd.Path)
	case Clear:
		return c.clear(ctx, cmd.Confirmer)
	case Pair:
		return c.pair(ctx, cmd.Name)
	}

	req := request{cmd: cmd, reply: make(chan outcome, 1)}
	c.inbox.post(req)
	select {
	case out := <-req.reply:
		return out.reply, out.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-c.stopped:
		return Reply{}, ErrStopped
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// State returns the capture state from the latest snapshot.
func (c *Controller) State() fsm.State {
	return c.Snapshot().State
}

// Entries returns the transcript in append order.
func (c *Controller) Entries() []transcript.Entry {
	return c.deps.Log.All()
}

// Speakers returns the speaker registry.
func (c *Controller) Speakers() *transcript.Registry {
	return c.deps.Speakers
}

// Subscribe delivers snapshots as they change. Slow readers only see the
// latest one. Call the returned function to unsubscribe.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- c.Snapshot()

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:       c.state,
		Mode:        c.mode,
		Status:      c.status,
		Holding:     c.holding,
		Recognizing: c.recognizing,
		Speaking:    c.speaking,
		Interim:     c.interim,
		Processing:  c.processing,
		Pending:     c.assembler.Pending(),
		Count:       c.deps.Log.Count(),
		Speaker:     c.speaker,
		Device:      c.device,
		Bluetooth:   c.bluetooth,
		Settings:    c.settings,
		Notice:      c.notice,
		NoticeSeq:   c.noticeSeq,
		Bars:        append([]audio.Bar(nil), c.bars...),
	}

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) dispatch(msg any) {
	switch m := msg.(type) {
	case request:
		reply, err := c.execute(m.cmd)
		c.publish()
		m.reply <- outcome{reply: reply, err: err}
	case recognizerEvent:
		c.onRecognizerEvent(m)
	case recognitionStarted:
		c.onRecognitionStarted(m)
	case audioFrame:
		c.onAudioFrame(m)
	case restartDue:
		c.onRestartDue(m)
	case processingChanged:
		c.processing = m.active
	case utteranceFinished:
		c.onUtteranceFinished(m)
	case noticeRaised:
		c.raise(m.notice)
	case bluetoothChanged:
		c.bluetooth = m.label
	}
}

func (c *Controller) execute(cmd Command) (Reply, error) {
	switch cmd := cmd.(type) {
	case Toggle:
		return c.toggle()
	case Press:
		return c.press()
	case Release:
		return c.release()
	case SetMode:
		return c.setMode(cmd.Mode)
	case SelectSpeaker:
		return c.selectSpeaker(cmd.Choice)
	case AddSpeaker:
		return c.addSpeaker(cmd.Name)
	case ChangeSetting:
		return c.changeSetting(cmd.Key, cmd.Value)
	default:
		return Reply{}, ErrUnknownCommand
	}
}

// raise records a notice for the dialog view and forwards it to the indicator.
func (c *Controller) raise(notice indicator.Notice) {
	c.notice = notice
	c.noticeSeq++
	if notice.Level == indicator.LevelError {
		c.logger.Warn("notice", "level", string(notice.Level), "text", notice.Text)
	} else {
		c.logger.Info("notice", "level", string(notice.Level), "text", notice.Text)
	}
	c.deps.Indicator.ShowNotice(c.uiCtx(), notice)
}

func (c *Controller) setStatus(kind string, text string) {
	c.status = Status{Kind: kind, Text: text}
}

// uiCtx outlives shutdown so the final stop cue and dismissal still run.
func (c *Controller) uiCtx() context.Context {
	return context.WithoutCancel(c.ctx)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowCapturing(context.Context)                {}
func (noopIndicator) ShowWaiting(context.Context)                  {}
func (noopIndicator) ShowNotice(context.Context, indicator.Notice) {}
func (noopIndicator) CueStop(context.Context)                      {}
func (noopIndicator) Hide(context.Context)                         {}

type unavailableMicrophone struct{}

func (unavailableMicrophone) Acquire(context.Context, audio.Constraints) (audio.Stream, error) {
	return nil, audio.ErrDeviceUnavailable
}

type unavailableRecognizer struct{}

func (unavailableRecognizer) Start(context.Context, recognition.Options, func(recognition.Event)) error {
	return errors.New("no recognizer configured")
}

func (unavailableRecognizer) SendAudio([]byte) error { return recognition.ErrNotStarted }

func (unavailableRecognizer) Stop() error { return recognition.ErrNotStarted }
