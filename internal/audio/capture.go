package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// ChunkSizeBytes is 20ms of 16kHz mono s16 audio.
	ChunkSizeBytes = 640
	SampleRate     = 16000

	chunkQueue = 128
)

// chunker cuts an arbitrary byte stream into ChunkSizeBytes pieces.
type chunker struct {
	pending []byte
}

// push appends b and returns every complete chunk now available.
func (k *chunker) push(b []byte) [][]byte {
	k.pending = append(k.pending, b...)
	var out [][]byte
	for len(k.pending) >= ChunkSizeBytes {
		out = append(out, append([]byte(nil), k.pending[:ChunkSizeBytes]...))
		k.pending = k.pending[ChunkSizeBytes:]
	}
	return out
}

// flush returns the short tail, if any, and empties the buffer.
func (k *chunker) flush() []byte {
	if len(k.pending) == 0 {
		return nil
	}
	tail := append([]byte(nil), k.pending...)
	k.pending = nil
	return tail
}

// Capture streams fixed-size PCM chunks from one Pulse source.
type Capture struct {
	device      Device
	constraints Constraints

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	done   chan struct{}

	mu       sync.Mutex
	buf      chunker
	stopped  bool
	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on selected. The
// capture stops when ctx ends.
func StartCapture(ctx context.Context, selected Device, constraints Constraints) (*Capture, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	c := newCapture(selected, constraints)
	c.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(ChunkSizeBytes),
		pulse.RecordMediaName("colloquy transcription"),
	)
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			c.Release()
		case <-c.done:
		}
	}()
	return c, nil
}

func newCapture(device Device, constraints Constraints) *Capture {
	return &Capture{
		device:      device,
		constraints: constraints,
		chunks:      make(chan []byte, chunkQueue),
		done:        make(chan struct{}),
	}
}

func (c *Capture) Device() Device { return c.device }

func (c *Capture) Constraints() Constraints { return c.constraints }

// Chunks is closed once the capture stops.
func (c *Capture) Chunks() <-chan []byte { return c.chunks }

// BytesCaptured reports how many bytes the server delivered.
func (c *Capture) BytesCaptured() int64 { return c.bytes.Load() }

// Stop ends the stream, emits any short tail chunk and closes Chunks.
// Later calls do nothing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.inflight.Wait()

	c.mu.Lock()
	tail := c.buf.flush()
	c.mu.Unlock()
	if tail != nil {
		select {
		case c.chunks <- tail:
		default:
		}
	}
	close(c.chunks)
	return nil
}

func (c *Capture) Release() {
	_ = c.Stop()
}

// onPCM is the record stream's writer. It returns io.EOF once stopped so
// the stream winds down.
func (c *Capture) onPCM(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under mu so Stop's Wait cannot start between the check and Add.
	c.inflight.Add(1)
	ready := c.buf.push(b)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(b)))
	for _, chunk := range ready {
		select {
		case <-c.done:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}
	return len(b), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
