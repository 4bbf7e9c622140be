package session

import (
	"errors"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/indicator"
	"github.com/rbright/colloquy/internal/pipeline"
	"github.com/rbright/colloquy/internal/recognition"
	"github.com/rbright/colloquy/internal/vad"
)

func (c *Controller) toggle() (Reply, error) {
	if c.mode == fsm.ModePushToTalk {
		return Reply{Message: "toggle ignored in push-to-talk mode"}, nil
	}
	if c.state == fsm.StateIdle {
		if err := c.startCapture(); err != nil {
			return Reply{}, err
		}
		return Reply{Message: "capture started"}, nil
	}
	c.stopCapture()
	return Reply{Message: "capture stopped"}, nil
}

func (c *Controller) press() (Reply, error) {
	if c.mode != fsm.ModePushToTalk {
		return Reply{Message: "press ignored outside push-to-talk mode"}, nil
	}
	if c.holding {
		return Reply{Message: "already holding"}, nil
	}
	c.holding = true
	if err := c.startCapture(); err != nil {
		c.holding = false
		return Reply{}, err
	}
	return Reply{Message: "capture started"}, nil
}

func (c *Controller) release() (Reply, error) {
	if !c.holding {
		return Reply{Message: "release ignored; not holding"}, nil
	}
	c.holding = false
	c.stopCapture()
	return Reply{Message: "capture stopped"}, nil
}

// setMode stops any active capture before switching, and stays idle.
func (c *Controller) setMode(mode fsm.Mode) (Reply, error) {
	c.stopCapture()
	c.mode = mode
	c.setStatus(StatusReady, mode.StatusText())
	c.logger.Info("recording mode changed", "mode", string(mode))
	return Reply{Message: mode.StatusText()}, nil
}

// startCapture moves Idle -> Capturing. Microphone failures raise a notice
// and leave the controller idle.
func (c *Controller) startCapture() error {
	if c.state != fsm.StateIdle {
		return nil
	}

	constraints := audio.ConstraintsFor(c.settings.AudioInput, c.deps.AudioFallback, c.settings.NoiseReduction)
	stream, err := c.deps.Microphone.Acquire(c.ctx, constraints)
	if err != nil {
		c.logger.Warn("microphone acquisition failed", "error", err, "device", constraints.Device)
		c.raise(indicator.Notice{Level: indicator.LevelError, Text: "Failed to access microphone: " + err.Error()})
		return err
	}

	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		stream.Release()
		return err
	}
	c.state = next
	c.stream = stream
	c.captureGen++
	c.restartAttempts = 0
	c.device = stream.Device().ID
	c.speaking = false
	c.detector.Reset()
	go c.pump(c.captureGen, stream)

	c.logger.Info("capture started", "mode", string(c.mode), "device", c.device)
	if c.mode == fsm.ModeVoiceActivated {
		c.setStatus(StatusRecording, TextWaiting)
		c.deps.Indicator.ShowWaiting(c.uiCtx())
		return nil
	}
	c.setStatus(StatusRecording, TextListening)
	c.deps.Indicator.ShowCapturing(c.uiCtx())
	c.startRecognition()
	return nil
}

// stopCapture moves Capturing -> Idle, releasing the stream exactly once.
// The microphone is released before the recognition session is told to stop.
// Queued utterances keep flowing through the pipeline.
func (c *Controller) stopCapture() {
	if c.state != fsm.StateCapturing {
		return
	}

	next, err := fsm.Transition(c.state, fsm.EventStop)
	if err != nil {
		c.logger.Error("capture stop rejected", "error", err)
		return
	}
	c.state = next
	c.stream.Release()
	c.stream = nil
	c.captureGen++
	c.cancelRestart()
	if c.recognizing {
		c.stopRecognition()
	}
	c.holding = false
	c.speaking = false
	c.detector.Reset()
	c.bars = audio.Baseline()
	c.interim = ""
	c.setStatus(StatusReady, TextReady)

	c.deps.Indicator.CueStop(c.uiCtx())
	c.deps.Indicator.Hide(c.uiCtx())
	c.logger.Info("capture stopped", "mode", string(c.mode))
}

// pump forwards microphone chunks to the recognizer and posts analysis
// frames to the loop until the stream is released.
func (c *Controller) pump(gen int, stream audio.Stream) {
	analyzer := audio.NewAnalyzer()
	held := newPreRoll(preRollChunks)
	for chunk := range stream.Chunks() {
		c.deliver(held, chunk)
		nr := int(c.noiseReduction.Load())
		c.inbox.post(audioFrame{
			gen:   gen,
			level: audio.Level(chunk),
			bars:  audio.Bars(analyzer.Spectrum(chunk), nr),
		})
	}
}

// deliver sends chunk after any held chunks. While no recognition session is
// open the most recent chunks are held, so speech heard during voice
// confirmation and dialing reaches the session once it opens.
func (c *Controller) deliver(held *preRoll, chunk []byte) {
	held.push(chunk)
	for held.len() > 0 {
		err := c.deps.Recognizer.SendAudio(held.front())
		if errors.Is(err, recognition.ErrNotStarted) {
			return
		}
		if err != nil {
			c.logger.Debug("audio chunk not delivered", "error", err)
		}
		held.pop()
	}
}

func (c *Controller) onAudioFrame(m audioFrame) {
	if m.gen != c.captureGen || c.state != fsm.StateCapturing {
		return
	}
	c.bars = m.bars
	if c.mode != fsm.ModeVoiceActivated {
		return
	}

	switch c.detector.Observe(m.level) {
	case vad.SpeechStart:
		c.speaking = true
		c.restartAttempts = 0
		c.setStatus(StatusRecording, TextListening)
		c.deps.Indicator.ShowCapturing(c.uiCtx())
		c.startRecognition()
	case vad.SpeechEnd:
		c.speaking = false
		c.cancelRestart()
		if c.recognizing {
			c.stopRecognition()
		}
		c.setStatus(StatusRecording, TextWaiting)
		c.deps.Indicator.ShowWaiting(c.uiCtx())
	}
}

// startRecognition opens a session without blocking the loop. The outcome
// arrives as recognitionStarted tagged with the session generation.
func (c *Controller) startRecognition() {
	if c.recognizing {
		return
	}
	c.recGen++
	gen := c.recGen
	opts := recognition.DefaultOptions(c.settings.Language)
	emit := func(ev recognition.Event) {
		c.inbox.post(recognizerEvent{gen: gen, ev: ev})
	}

	c.recognizing = true
	ctx := c.ctx
	c.calls.post(func() {
		err := c.deps.Recognizer.Start(ctx, opts, emit)
		c.inbox.post(recognitionStarted{gen: gen, err: err})
	})
	c.logger.Debug("recognition starting", "language", opts.Language, "gen", gen)
}

// onRecognitionStarted handles the result of a start. A stale success needs
// nothing: the stop that made it stale is queued behind the start.
func (c *Controller) onRecognitionStarted(m recognitionStarted) {
	if m.gen != c.recGen || !c.recognizing {
		return
	}
	if m.err == nil {
		c.logger.Debug("recognition started", "gen", m.gen)
		return
	}

	c.logger.Warn("recognition start failed", "error", m.err, "attempt", c.restartAttempts)
	if c.restartAttempts == 0 {
		c.raise(indicator.Notice{Level: indicator.LevelError, Text: "Recognition error: " + recognition.CodeNetwork})
	}
	c.recognizing = false
	c.recognitionEnded()
}

// stopRecognition ends the current session. Its trailing events become
// stale; late finals are still transcribed.
func (c *Controller) stopRecognition() {
	c.recognizing = false
	c.recGen++
	c.calls.post(func() {
		if err := c.deps.Recognizer.Stop(); err != nil && !errors.Is(err, recognition.ErrNotStarted) {
			c.logger.Warn("recognition stop failed", "error", err)
		}
	})
}

// runRecognizerCalls executes recognizer starts and stops one at a time, in
// the order the loop issued them, until quit is closed. Calls queued before
// quit still run.
func (c *Controller) runRecognizerCalls(quit <-chan struct{}) {
	run := func() {
		for _, call := range c.calls.drain() {
			call.(func())()
		}
	}
	for {
		select {
		case <-c.calls.wake:
			run()
		case <-quit:
			run()
			return
		}
	}
}

func (c *Controller) onRecognizerEvent(m recognizerEvent) {
	current := m.gen == c.recGen && c.recognizing

	switch m.ev.Kind {
	case recognition.EventStart:
		if !current {
			return
		}
		c.restartAttempts = 0
		if c.state == fsm.StateCapturing {
			c.setStatus(StatusRecording, TextListening)
		}
	case recognition.EventResult:
		interim, finals := recognition.Interim(m.ev)
		for _, alt := range finals {
			c.submit(alt)
		}
		if current && interim != "" && c.state == fsm.StateCapturing {
			c.interim = interim
			c.interimSeq++
		}
	case recognition.EventError:
		if !current {
			return
		}
		if m.ev.Routine() {
			c.logger.Debug("recognition ended quietly", "code", m.ev.Code)
			return
		}
		c.raise(indicator.Notice{Level: indicator.LevelError, Text: "Recognition error: " + m.ev.Code})
	case recognition.EventEnd:
		if !current {
			return
		}
		c.recognizing = false
		c.recognitionEnded()
	}
}

// recognitionEnded restarts the session while capture continues, except in
// push-to-talk and during voice-activated silence.
func (c *Controller) recognitionEnded() {
	switch {
	case c.state != fsm.StateCapturing || c.mode == fsm.ModePushToTalk:
		c.setStatus(StatusReady, TextReady)
	case c.mode == fsm.ModeVoiceActivated && !c.speaking:
		c.setStatus(StatusRecording, TextWaiting)
	default:
		c.scheduleRestart()
	}
}

func (c *Controller) scheduleRestart() {
	c.cancelRestart()
	delay := c.restartDelay()
	c.restartAttempts++
	gen := c.captureGen
	c.restartTimer = time.AfterFunc(delay, func() {
		c.inbox.post(restartDue{gen: gen})
	})
	c.logger.Debug("recognition restart scheduled", "delay", delay, "attempt", c.restartAttempts)
}

// restartDelay doubles per consecutive restart that never reached start.
func (c *Controller) restartDelay() time.Duration {
	delay := c.deps.RestartDelay
	for range c.restartAttempts {
		delay *= 2
		if delay >= MaxRestartDelay {
			return MaxRestartDelay
		}
	}
	return min(delay, MaxRestartDelay)
}

func (c *Controller) cancelRestart() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func (c *Controller) onRestartDue(m restartDue) {
	if m.gen != c.captureGen || c.state != fsm.StateCapturing || c.recognizing {
		return
	}
	c.restartTimer = nil
	if c.mode == fsm.ModePushToTalk || (c.mode == fsm.ModeVoiceActivated && !c.speaking) {
		return
	}
	c.startRecognition()
}

func (c *Controller) submit(alt recognition.Alternative) {
	c.pendingClears = append(c.pendingClears, c.interimSeq)
	c.assembler.Submit(pipeline.Utterance{
		Text:           alt.Transcript,
		Confidence:     alt.Confidence,
		Timestamp:      c.deps.Now(),
		NoiseReduction: c.settings.NoiseReduction,
		Profile:        c.settings.EnhancementModel,
		SpeakerChoice:  c.speaker,
	})
}

// onUtteranceFinished drops the interim line once its final is processed,
// unless newer interim text arrived meanwhile.
func (c *Controller) onUtteranceFinished(m utteranceFinished) {
	if len(c.pendingClears) > 0 {
		seq := c.pendingClears[0]
		c.pendingClears = c.pendingClears[1:]
		if seq == c.interimSeq {
			c.interim = ""
		}
	}
	if m.appended {
		c.logger.Info("transcript entry appended",
			"id", m.entry.ID,
			"speaker", m.entry.Speaker,
			"confidence", m.entry.Confidence,
			"chars", len(m.entry.Text),
		)
	}
}
