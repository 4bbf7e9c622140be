package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/colloquy/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName  = "colloquy.recognition.v1.Recognizer"
	streamMethod = "/" + ServiceName + "/Stream"

	stopWait = 2 * time.Second
)

var errSendClosed = errors.New("recognition stream already closed for sending")

var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

// Client is a Recognizer backed by one bidirectional gRPC stream per session.
// Stopping detaches the session at once; it drains in the background, so a
// new session can start while the previous one delivers its last results.
type Client struct {
	endpoint    string
	dialTimeout time.Duration
	drainWait   time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	active  *stream
	dialing bool
}

// stream is one recognition session.
type stream struct {
	conn   *grpc.ClientConn
	rpc    grpc.ClientStream
	cancel context.CancelFunc
	done   chan struct{}

	sendMu sync.Mutex
	closed bool
}

// NewClient returns a recognizer for endpoint (host:port).
func NewClient(endpoint string, dialTimeout time.Duration, logger *slog.Logger) *Client {
	if dialTimeout <= 0 {
		dialTimeout = rpc.DefaultDialTimeout
	}
	return &Client{
		endpoint:    strings.TrimSpace(endpoint),
		dialTimeout: dialTimeout,
		drainWait:   stopWait,
		logger:      logger,
	}
}

// Start dials the backend, sends the session config and starts the receive
// loop. The client lock is not held while dialing.
func (c *Client) Start(ctx context.Context, opts Options, emit func(Event)) error {
	c.mu.Lock()
	if c.active != nil || c.dialing {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.dialing = true
	c.mu.Unlock()

	s, err := c.open(ctx, opts)

	c.mu.Lock()
	c.dialing = false
	if err == nil {
		c.active = s
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	go c.recvLoop(s, emit)
	return nil
}

func (c *Client) open(ctx context.Context, opts Options) (*stream, error) {
	conn, err := rpc.Dial(ctx, c.endpoint, c.dialTimeout)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fail := func(format string, err error) (*stream, error) {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	rs, err := withTimeout(streamCtx, c.dialTimeout, func() (grpc.ClientStream, error) {
		return conn.NewStream(streamCtx, &streamDesc, streamMethod)
	})
	if err != nil {
		return fail("open recognition stream: %w", err)
	}

	cfg, err := EncodeOptions(opts)
	if err != nil {
		return fail("encode recognition options: %w", err)
	}
	first, err := anypb.New(cfg)
	if err != nil {
		return fail("wrap recognition options: %w", err)
	}
	if _, err := withTimeout(streamCtx, c.dialTimeout, func() (struct{}, error) {
		return struct{}{}, rs.SendMsg(first)
	}); err != nil {
		return fail("send recognition config: %w", err)
	}

	return &stream{
		conn:   conn,
		rpc:    rs,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// recvLoop forwards backend events until the stream ends. It emits start
// first and end last; start/end messages from the backend are ignored.
func (c *Client) recvLoop(s *stream, emit func(Event)) {
	defer close(s.done)
	defer emit(Event{Kind: EventEnd})
	defer c.finish(s)

	emit(Event{Kind: EventStart})

	for {
		msg := &structpb.Struct{}
		err := s.rpc.RecvMsg(msg)
		if err == nil {
			ev, decodeErr := DecodeEvent(msg)
			if decodeErr != nil {
				c.log().Warn("dropping recognition message", "error", decodeErr)
				continue
			}
			if ev.Kind == EventStart || ev.Kind == EventEnd {
				continue
			}
			emit(ev)
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		emit(Event{Kind: EventError, Code: errorCode(err)})
		return
	}
}

func (c *Client) finish(s *stream) {
	s.cancel()
	_ = s.conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// SendAudio sends one chunk of 16-bit PCM over the active session.
func (c *Client) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return ErrNotStarted
	}
	return s.send(chunk)
}

// Stop detaches the active session and returns without waiting. The session
// is half-closed so the backend can flush its last results; a backend that
// does not end the stream within the drain window is cancelled.
func (c *Client) Stop() error {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()
	if s == nil {
		return ErrNotStarted
	}

	go s.drain(c.drainWait)
	return nil
}

func (s *stream) send(chunk []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return errSendClosed
	}

	msg, err := anypb.New(wrapperspb.Bytes(chunk))
	if err != nil {
		return fmt.Errorf("wrap audio chunk: %w", err)
	}
	return s.rpc.SendMsg(msg)
}

func (s *stream) drain(wait time.Duration) {
	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		_ = s.rpc.CloseSend()
	}
	s.sendMu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.cancel()
	}
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// errorCode maps transport failures onto recognition error codes.
func errorCode(err error) string {
	switch status.Code(err) {
	case codes.Canceled:
		return CodeAborted
	case codes.Unavailable, codes.DeadlineExceeded:
		return CodeNetwork
	case codes.PermissionDenied, codes.Unauthenticated:
		return "not-allowed"
	case codes.InvalidArgument:
		return "bad-grammar"
	default:
		return strings.ToLower(status.Code(err).String())
	}
}
