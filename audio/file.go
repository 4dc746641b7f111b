package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultReplayChunk is 100ms of 16kHz 16-bit mono audio
	DefaultReplayChunk = 3200
	// DefaultReplayInterval paces replay at real time
	DefaultReplayInterval = 100 * time.Millisecond
)

// FileDevice replays a recorded file as if it were captured live. It lets
// the widget run on machines without a microphone.
type FileDevice struct {
	Path      string
	ChunkSize int
	Interval  time.Duration
}

// NewFileDevice creates a real-time paced replay device for path
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{
		Path:      path,
		ChunkSize: DefaultReplayChunk,
		Interval:  DefaultReplayInterval,
	}
}

// Open reads the whole file and starts replaying it in chunks
func (d *FileDevice) Open(ctx context.Context) (Capture, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return NewReplayCapture(data, d.ChunkSize, d.Interval), nil
}

// ReplayCapture emits a fixed payload in chunks at a steady pace
type ReplayCapture struct {
	chunks   chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReplayCapture starts replaying data. A zero interval emits all chunks at once.
func NewReplayCapture(data []byte, chunkSize int, interval time.Duration) *ReplayCapture {
	if chunkSize <= 0 {
		chunkSize = DefaultReplayChunk
	}
	c := &ReplayCapture{
		chunks: make(chan []byte),
		stop:   make(chan struct{}),
	}
	go c.run(data, chunkSize, interval)
	return c
}

func (c *ReplayCapture) run(data []byte, chunkSize int, interval time.Duration) {
	defer close(c.chunks)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}

		select {
		case <-c.stop:
			return
		case c.chunks <- data[i:end]:
		}

		if tick != nil && end < len(data) {
			select {
			case <-c.stop:
				return
			case <-tick:
			}
		}
	}
}

// Chunks yields the replayed audio
func (c *ReplayCapture) Chunks() <-chan []byte {
	return c.chunks
}

// Stop ends the replay
func (c *ReplayCapture) Stop() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
