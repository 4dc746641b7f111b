package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a chunk would push the buffer past its maximum size
var ErrBufferFull = errors.New("audio buffer full")

// ChunkBuffer accumulates captured audio chunks in arrival order until flushed
type ChunkBuffer struct {
	chunks    [][]byte
	totalSize int
	maxSize   int
	dropped   int
	full      bool
	mu        sync.Mutex
}

// NewChunkBuffer creates a buffer holding at most maxSize bytes
func NewChunkBuffer(maxSize int) *ChunkBuffer {
	return &ChunkBuffer{
		chunks:  make([][]byte, 0),
		maxSize: maxSize,
	}
}

// MaxSize returns the maximum buffer size
func (cb *ChunkBuffer) MaxSize() int {
	return cb.maxSize
}

// Append copies chunk into the buffer.
// Returns ErrBufferFull, and counts the chunk as dropped, if it would exceed
// maxSize. After the first drop every later chunk is dropped too, so the
// buffered audio stays a gapless prefix of the capture.
func (cb *ChunkBuffer) Append(chunk []byte) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	newSize := cb.totalSize + len(chunk)
	if cb.full || newSize > cb.maxSize {
		cb.full = true
		cb.dropped++
		return ErrBufferFull
	}

	// Capture sources reuse their read buffers
	owned := make([]byte, len(chunk))
	copy(owned, chunk)

	cb.chunks = append(cb.chunks, owned)
	cb.totalSize = newSize
	return nil
}

// Flush concatenates all chunks in order into one payload and clears the buffer.
// An empty buffer flushes to an empty, non-nil payload.
func (cb *ChunkBuffer) Flush() []byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	result := make([]byte, 0, cb.totalSize)
	for _, chunk := range cb.chunks {
		result = append(result, chunk...)
	}

	cb.chunks = make([][]byte, 0)
	cb.totalSize = 0
	cb.dropped = 0
	cb.full = false

	return result
}

// Clear empties the buffer without returning data
func (cb *ChunkBuffer) Clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.chunks = make([][]byte, 0)
	cb.totalSize = 0
	cb.dropped = 0
	cb.full = false
}

// Dropped returns how many chunks were rejected since the last flush
func (cb *ChunkBuffer) Dropped() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.dropped
}
