package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/leadchat/audio"
)

// fakeCapture hands out chunks pushed by the test
type fakeCapture struct {
	chunks   chan []byte
	stopOnce sync.Once
	stops    int
	mu       sync.Mutex
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{chunks: make(chan []byte, 16)}
}

func (f *fakeCapture) Chunks() <-chan []byte { return f.chunks }

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.chunks) })
	return nil
}

type fakeDevice struct {
	err      error
	captures []*fakeCapture
	opens    int
}

func (d *fakeDevice) Open(context.Context) (audio.Capture, error) {
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeCapture()
	d.captures = append(d.captures, c)
	return c, nil
}

// fakeTimer fires only when the test says so
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	mu      sync.Mutex
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.f()
	}
}

type timerFactory struct {
	timers []*fakeTimer
}

func (tf *timerFactory) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	tf.timers = append(tf.timers, t)
	return t
}

type dispatchLog struct {
	mu   sync.Mutex
	recs []Recording
}

func (l *dispatchLog) add(r Recording) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, r)
}

func (l *dispatchLog) all() []Recording {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Recording(nil), l.recs...)
}

func newTestController(dev audio.Device) (*Controller, *timerFactory, *dispatchLog) {
	timers := &timerFactory{}
	dispatched := &dispatchLog{}
	c := NewController(dev, 1024, dispatched.add, WithAfterFunc(timers.AfterFunc))
	return c, timers, dispatched
}

func TestToggle_StartThenManualStop(t *testing.T) {
	dev := &fakeDevice{}
	c, timers, dispatched := newTestController(dev)

	state, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRecording, state)
	require.Len(t, timers.timers, 1)

	capture := dev.captures[0]
	capture.chunks <- []byte("RIFF")
	capture.chunks <- []byte("....")
	capture.chunks <- []byte("data")

	state, err = c.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, timers.timers[0].stopped, "safety timer cancelled on manual stop")

	recs := dispatched.all()
	require.Len(t, recs, 1)
	assert.Equal(t, StopManual, recs[0].Reason)
	assert.Equal(t, []byte("RIFF....data"), recs[0].Audio)
	assert.Equal(t, 3, recs[0].Chunks)

	// A late timer callback must not dispatch again.
	timers.timers[0].f()
	assert.Len(t, dispatched.all(), 1)
}

func TestToggle_SafetyDeadline(t *testing.T) {
	dev := &fakeDevice{}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	timers := &timerFactory{}
	dispatched := &dispatchLog{}
	c := NewController(dev, 1024, dispatched.add,
		WithAfterFunc(timers.AfterFunc),
		WithClock(func() time.Time { return start }))

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)

	require.Len(t, timers.timers, 1)
	assert.Equal(t, 5*time.Second, timers.timers[0].d)
	deadline, ok := c.Deadline()
	require.True(t, ok)
	assert.Equal(t, start.Add(5*time.Second), deadline)

	dev.captures[0].chunks <- []byte("partial")
	timers.timers[0].Fire()

	assert.Equal(t, StateIdle, c.State())
	recs := dispatched.all()
	require.Len(t, recs, 1)
	assert.Equal(t, StopTimeout, recs[0].Reason)
	assert.Equal(t, []byte("partial"), recs[0].Audio)
	_, ok = c.Deadline()
	assert.False(t, ok)
}

func TestToggle_SafetyDeadlineWithNoAudio(t *testing.T) {
	dev := &fakeDevice{}
	c, timers, dispatched := newTestController(dev)

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	timers.timers[0].Fire()

	recs := dispatched.all()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Audio)
	assert.Equal(t, StopTimeout, recs[0].Reason)
}

func TestToggle_RealTimerAutoStops(t *testing.T) {
	dev := &fakeDevice{}
	done := make(chan Recording, 1)
	c := NewController(dev, 1024, func(r Recording) { done <- r })
	c.limit = 20 * time.Millisecond

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)

	select {
	case rec := <-done:
		assert.Equal(t, StopTimeout, rec.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("recording was not auto-stopped")
	}
	assert.Equal(t, StateIdle, c.State())
}

func TestToggle_DeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{err: errors.New("permission denied")}
	c, timers, dispatched := newTestController(dev)

	state, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, timers.timers)
	assert.Empty(t, dispatched.all())
}

func TestToggle_SharedDeviceIsExclusive(t *testing.T) {
	dev := &fakeDevice{}
	shared := audio.NewExclusiveDevice(dev)
	first, _, firstDispatched := newTestController(shared)
	second, _, _ := newTestController(shared)

	_, err := first.Toggle(context.Background())
	require.NoError(t, err)

	state, err := second.Toggle(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, 1, dev.opens)

	_, err = first.Toggle(context.Background())
	require.NoError(t, err)
	require.Len(t, firstDispatched.all(), 1)

	state, err = second.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRecording, state)
	second.Cancel()
}

func TestToggle_NilDevice(t *testing.T) {
	c, _, _ := newTestController(nil)
	_, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
}

func TestToggle_NeverNested(t *testing.T) {
	dev := &fakeDevice{}
	c, _, dispatched := newTestController(dev)

	for i := 0; i < 3; i++ {
		_, err := c.Toggle(context.Background())
		require.NoError(t, err)
		_, err = c.Toggle(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, dev.opens, "each start opens exactly one capture")
	assert.Len(t, dispatched.all(), 3)
	for _, capture := range dev.captures {
		assert.Equal(t, 1, capture.stops)
	}
}

func TestToggle_BufferOverflowDropsChunks(t *testing.T) {
	dev := &fakeDevice{}
	dispatched := &dispatchLog{}
	timers := &timerFactory{}
	c := NewController(dev, 8, dispatched.add, WithAfterFunc(timers.AfterFunc))

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	dev.captures[0].chunks <- []byte("12345")
	dev.captures[0].chunks <- []byte("67890")
	dev.captures[0].chunks <- []byte("ab")

	_, err = c.Toggle(context.Background())
	require.NoError(t, err)

	recs := dispatched.all()
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("12345"), recs[0].Audio)
	assert.Equal(t, 2, recs[0].Dropped)
}

func TestToggle_OverflowKeepsContiguousPrefix(t *testing.T) {
	dev := &fakeDevice{}
	dispatched := &dispatchLog{}
	timers := &timerFactory{}
	c := NewController(dev, 10, dispatched.add, WithAfterFunc(timers.AfterFunc))

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	dev.captures[0].chunks <- []byte("aaaaaaaa")
	dev.captures[0].chunks <- []byte("bbbbb")
	dev.captures[0].chunks <- []byte("cc")

	_, err = c.Toggle(context.Background())
	require.NoError(t, err)

	recs := dispatched.all()
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("aaaaaaaa"), recs[0].Audio)
	assert.Equal(t, 1, recs[0].Chunks)
	assert.Equal(t, 2, recs[0].Dropped)

	// The next recording starts with an empty, open buffer
	_, err = c.Toggle(context.Background())
	require.NoError(t, err)
	dev.captures[1].chunks <- []byte("cc")
	_, err = c.Toggle(context.Background())
	require.NoError(t, err)

	recs = dispatched.all()
	require.Len(t, recs, 2)
	assert.Equal(t, []byte("cc"), recs[1].Audio)
	assert.Zero(t, recs[1].Dropped)
}

func TestCancel_DiscardsWithoutDispatch(t *testing.T) {
	dev := &fakeDevice{}
	c, timers, dispatched := newTestController(dev)

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	dev.captures[0].chunks <- []byte("secret")

	c.Cancel()
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, timers.timers[0].stopped)
	assert.Empty(t, dispatched.all())

	c.Cancel()
}
