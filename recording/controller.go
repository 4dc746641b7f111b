// Package recording drives a single push-to-talk capture from start to a
// finalized audio payload.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/leadchat/audio"
)

// SafetyLimit bounds every recording; capture stops on its own at this deadline
const SafetyLimit = 5 * time.Second

// State is the recorder's lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// StopReason records why a capture ended
type StopReason string

const (
	StopManual  StopReason = "manual"
	StopTimeout StopReason = "timeout"
)

// Recording is a finalized capture ready for upload
type Recording struct {
	ID       string
	Audio    []byte
	Chunks   int
	Dropped  int
	Reason   StopReason
	Started  time.Time
	Finished time.Time
}

// Timer is the part of *time.Timer the controller needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Controller owns the audio input and at most one active recording
type Controller struct {
	device    audio.Device
	dispatch  func(Recording)
	maxBuffer int
	limit     time.Duration
	afterFunc AfterFunc
	now       func() time.Time

	mu     sync.Mutex
	state  State
	active *activeRecording
}

type activeRecording struct {
	id        string
	capture   audio.Capture
	buffer    *audio.ChunkBuffer
	timer     Timer
	started   time.Time
	deadline  time.Time
	collected chan struct{}
	chunks    int
}

// Option customizes a Controller
type Option func(*Controller)

// WithAfterFunc replaces the timer used for the safety deadline
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = f }
}

// WithClock replaces the wall clock used for timestamps and deadlines
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates an idle recorder. dispatch receives every finalized
// recording, whether stopped by the user or by the safety deadline.
func NewController(device audio.Device, maxBuffer int, dispatch func(Recording), opts ...Option) *Controller {
	c := &Controller{
		device:    device,
		dispatch:  dispatch,
		maxBuffer: maxBuffer,
		limit:     SafetyLimit,
		afterFunc: realAfterFunc,
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Deadline returns when the active recording will be stopped automatically
func (c *Controller) Deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return time.Time{}, false
	}
	return c.active.deadline, true
}

// Toggle starts a recording when idle and stops the active one when
// recording. It returns the state after the call. Device failures wrap
// audio.ErrDeviceUnavailable and leave the recorder idle.
func (c *Controller) Toggle(ctx context.Context) (State, error) {
	c.mu.Lock()

	switch c.state {
	case StateRecording:
		rec := c.active
		c.mu.Unlock()
		c.finish(rec, StopManual)
		return c.State(), nil

	case StateFinalizing:
		c.mu.Unlock()
		return StateFinalizing, nil
	}
	defer c.mu.Unlock()

	if c.device == nil {
		return StateIdle, fmt.Errorf("%w: no capture device", audio.ErrDeviceUnavailable)
	}

	capture, err := c.device.Open(ctx)
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		return StateIdle, err
	}

	started := c.now()
	rec := &activeRecording{
		id:        uuid.New().String(),
		capture:   capture,
		buffer:    audio.NewChunkBuffer(c.maxBuffer),
		started:   started,
		deadline:  started.Add(c.limit),
		collected: make(chan struct{}),
	}
	go c.collect(rec)
	rec.timer = c.afterFunc(c.limit, func() { c.finish(rec, StopTimeout) })

	c.active = rec
	c.state = StateRecording
	log.Printf("🎤 [%s] Recording started, auto-stop in %s", rec.id[:8], c.limit)
	return StateRecording, nil
}

// Cancel discards the active recording without dispatching it
func (c *Controller) Cancel() {
	c.mu.Lock()
	rec := c.active
	if rec == nil || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateFinalizing
	rec.timer.Stop()
	c.mu.Unlock()

	_ = rec.capture.Stop()
	<-rec.collected
	rec.buffer.Clear()

	c.mu.Lock()
	c.active = nil
	c.state = StateIdle
	c.mu.Unlock()
	log.Printf("🗑️ [%s] Recording discarded", rec.id[:8])
}

// collect appends captured chunks in arrival order until the capture closes
func (c *Controller) collect(rec *activeRecording) {
	defer close(rec.collected)
	for chunk := range rec.capture.Chunks() {
		if err := rec.buffer.Append(chunk); err != nil {
			if rec.buffer.Dropped() == 1 {
				log.Printf("⚠️ [%s] Audio buffer full (max %d bytes), dropping chunks", rec.id[:8], rec.buffer.MaxSize())
			}
			continue
		}
		rec.chunks++
	}
}

// finish stops rec and dispatches its payload. Calls for a recording that is
// no longer active, such as a safety timer racing a manual stop, are ignored.
func (c *Controller) finish(rec *activeRecording, reason StopReason) {
	c.mu.Lock()
	if rec == nil || c.active != rec || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateFinalizing
	rec.timer.Stop()
	c.mu.Unlock()

	if err := rec.capture.Stop(); err != nil {
		log.Printf("⚠️ [%s] Capture stop error: %v", rec.id[:8], err)
	}
	<-rec.collected

	dropped := rec.buffer.Dropped()
	result := Recording{
		ID:       rec.id,
		Chunks:   rec.chunks,
		Dropped:  dropped,
		Audio:    rec.buffer.Flush(),
		Reason:   reason,
		Started:  rec.started,
		Finished: c.now(),
	}

	c.mu.Lock()
	c.active = nil
	c.state = StateIdle
	c.mu.Unlock()

	log.Printf("📦 [%s] Recording finalized (%s): %d bytes in %d chunks", rec.id[:8], reason, len(result.Audio), result.Chunks)
	if c.dispatch != nil {
		c.dispatch(result)
	}
}
