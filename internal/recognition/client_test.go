package recognition

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type scriptedHandler struct {
	mu     sync.Mutex
	opts   Options
	frames int
	bytes  int
	events []Event
	err    error
}

func (h *scriptedHandler) Serve(_ context.Context, opts Options, frames <-chan []byte, send func(Event) error) error {
	h.mu.Lock()
	h.opts = opts
	h.mu.Unlock()

	for chunk := range frames {
		h.mu.Lock()
		h.frames++
		h.bytes += len(chunk)
		h.mu.Unlock()
	}
	for _, ev := range h.events {
		if err := send(ev); err != nil {
			return err
		}
	}
	return h.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ended  chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ended: make(chan struct{})}
}

func (r *eventRecorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if ev.Kind == EventEnd {
		close(r.ended)
	}
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func startRecognizer(t *testing.T, h Handler) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer()
	RegisterService(server, h)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)
	return listener.Addr().String()
}

func TestClientStreamsAudioAndForwardsResults(t *testing.T) {
	h := &scriptedHandler{events: []Event{
		{Kind: EventResult, Results: []Result{{Alternatives: []Alternative{{Transcript: "hello wor", Confidence: 0.4}}}}},
		{Kind: EventResult, Results: []Result{{IsFinal: true, Alternatives: []Alternative{{Transcript: "hello world", Confidence: 0.92}}}}},
		{Kind: EventEnd},
	}}
	addr := startRecognizer(t, h)

	rec := newEventRecorder()
	client := NewClient(addr, time.Second, nil)
	require.NoError(t, client.Start(context.Background(), DefaultOptions("de-DE"), rec.emit))
	require.ErrorIs(t, client.Start(context.Background(), DefaultOptions(""), rec.emit), ErrAlreadyStarted)

	require.NoError(t, client.SendAudio(make([]byte, 640)))
	require.NoError(t, client.SendAudio(make([]byte, 640)))
	require.NoError(t, client.SendAudio(nil))
	require.NoError(t, client.Stop())

	select {
	case <-rec.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	require.Equal(t, []EventKind{EventStart, EventResult, EventResult, EventEnd}, rec.kinds())
	rec.mu.Lock()
	final := rec.events[2]
	rec.mu.Unlock()
	alt, ok := final.Results[0].Best()
	require.True(t, ok)
	require.Equal(t, "hello world", alt.Transcript)
	require.InDelta(t, 0.92, alt.Confidence, 1e-9)
	require.True(t, final.Results[0].IsFinal)

	h.mu.Lock()
	require.Equal(t, "de-DE", h.opts.Language)
	require.True(t, h.opts.InterimResults)
	require.Equal(t, 16000, h.opts.SampleRateHertz)
	require.Equal(t, 2, h.frames)
	require.Equal(t, 1280, h.bytes)
	h.mu.Unlock()

	require.ErrorIs(t, client.SendAudio([]byte{1}), ErrNotStarted)
	require.ErrorIs(t, client.Stop(), ErrNotStarted)
}

func TestClientMapsTransportErrors(t *testing.T) {
	h := &scriptedHandler{err: status.Error(codes.Unavailable, "backend restarting")}
	addr := startRecognizer(t, h)

	rec := newEventRecorder()
	client := NewClient(addr, time.Second, nil)
	require.NoError(t, client.Start(context.Background(), DefaultOptions(""), rec.emit))
	require.NoError(t, client.Stop())

	<-rec.ended
	require.Equal(t, []EventKind{EventStart, EventError, EventEnd}, rec.kinds())
	rec.mu.Lock()
	require.Equal(t, CodeNetwork, rec.events[1].Code)
	require.False(t, rec.events[1].Routine())
	rec.mu.Unlock()
}

func TestClientForwardsBackendErrorEvents(t *testing.T) {
	h := &scriptedHandler{events: []Event{{Kind: EventError, Code: CodeNoSpeech}}}
	addr := startRecognizer(t, h)

	rec := newEventRecorder()
	client := NewClient(addr, time.Second, nil)
	require.NoError(t, client.Start(context.Background(), DefaultOptions(""), rec.emit))
	require.NoError(t, client.Stop())

	<-rec.ended
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, EventError, rec.events[1].Kind)
	require.True(t, rec.events[1].Routine())
}

// stallingHandler reads audio until the client half-closes, then holds the
// stream open until it is cancelled.
type stallingHandler struct{}

func (stallingHandler) Serve(ctx context.Context, _ Options, frames <-chan []byte, _ func(Event) error) error {
	for range frames {
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestClientStopReturnsBeforeBackendDrains(t *testing.T) {
	addr := startRecognizer(t, stallingHandler{})

	first := newEventRecorder()
	client := NewClient(addr, time.Second, nil)
	client.drainWait = 300 * time.Millisecond
	require.NoError(t, client.Start(context.Background(), DefaultOptions(""), first.emit))
	require.NoError(t, client.SendAudio(make([]byte, 640)))

	began := time.Now()
	require.NoError(t, client.Stop())
	require.Less(t, time.Since(began), 100*time.Millisecond)
	require.ErrorIs(t, client.SendAudio([]byte{1}), ErrNotStarted)

	second := newEventRecorder()
	require.NoError(t, client.Start(context.Background(), DefaultOptions(""), second.emit))
	select {
	case <-first.ended:
		t.Fatal("stalled session ended before the drain window")
	default:
	}

	select {
	case <-first.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled session was not cancelled")
	}
	require.Equal(t, []EventKind{EventStart, EventError, EventEnd}, first.kinds())

	require.NoError(t, client.SendAudio(make([]byte, 640)))
	require.NoError(t, client.Stop())
	<-second.ended
}

func TestClientStartFailsWithoutBackend(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client := NewClient(addr, 100*time.Millisecond, nil)
	err = client.Start(context.Background(), DefaultOptions(""), func(Event) {})
	require.Error(t, err)
	require.ErrorIs(t, client.SendAudio([]byte{1}), ErrNotStarted)
}

func TestInterimSplitsFinalsFromPending(t *testing.T) {
	t.Parallel()

	ev := Event{
		Kind:        EventResult,
		ResultIndex: 1,
		Results: []Result{
			{IsFinal: true, Alternatives: []Alternative{{Transcript: "already handled"}}},
			{IsFinal: true, Alternatives: []Alternative{{Transcript: "done now", Confidence: 0.8}}},
			{Alternatives: []Alternative{{Transcript: "  still   talking "}}},
			{},
			{Alternatives: []Alternative{{Transcript: "more"}, {Transcript: "ignored"}}},
		},
	}
	interim, finals := Interim(ev)
	require.Equal(t, "still talking more", interim)
	require.Equal(t, []Alternative{{Transcript: "done now", Confidence: 0.8}}, finals)
}

func TestEventWireRoundTrip(t *testing.T) {
	t.Parallel()

	in := Event{Kind: EventResult, ResultIndex: 2, Results: []Result{
		{IsFinal: true, Alternatives: []Alternative{{Transcript: "a", Confidence: 0.5}}},
	}}
	msg, err := EncodeEvent(in)
	require.NoError(t, err)
	out, err := DecodeEvent(msg)
	require.NoError(t, err)
	require.Equal(t, in, out)

	msg.Fields["type"] = msg.Fields["code"]
	_, err = DecodeEvent(msg)
	require.Error(t, err)
}
