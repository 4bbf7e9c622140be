package session

import "github.com/rbright/colloquy/internal/audio"

// preRollChunks is one second of audio.
const preRollChunks = audio.SampleRate * 2 / audio.ChunkSizeBytes

// preRoll is a bounded FIFO of chunks awaiting delivery. Pushing onto a full
// buffer drops the oldest chunk.
type preRoll struct {
	chunks [][]byte
	limit  int
}

func newPreRoll(limit int) *preRoll {
	return &preRoll{chunks: make([][]byte, 0, limit), limit: limit}
}

func (p *preRoll) push(chunk []byte) {
	if len(p.chunks) == p.limit {
		p.pop()
	}
	p.chunks = append(p.chunks, chunk)
}

func (p *preRoll) front() []byte { return p.chunks[0] }

func (p *preRoll) pop() {
	last := len(p.chunks) - 1
	copy(p.chunks, p.chunks[1:])
	p.chunks[last] = nil
	p.chunks = p.chunks[:last]
}

func (p *preRoll) len() int { return len(p.chunks) }
