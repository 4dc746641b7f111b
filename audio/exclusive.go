package audio

import (
	"context"
	"fmt"
	"sync"
)

// ExclusiveDevice lets several recorders share one input while allowing at
// most one live capture. Open fails with ErrDeviceUnavailable until the
// current capture is stopped.
type ExclusiveDevice struct {
	device Device
	mu     sync.Mutex
	busy   bool
}

// NewExclusiveDevice guards device
func NewExclusiveDevice(device Device) *ExclusiveDevice {
	return &ExclusiveDevice{device: device}
}

func (d *ExclusiveDevice) Open(ctx context.Context) (Capture, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: already capturing", ErrDeviceUnavailable)
	}
	d.busy = true
	d.mu.Unlock()

	capture, err := d.device.Open(ctx)
	if err != nil {
		d.release()
		return nil, err
	}
	return &exclusiveCapture{Capture: capture, release: d.release}, nil
}

func (d *ExclusiveDevice) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

type exclusiveCapture struct {
	Capture
	once    sync.Once
	release func()
}

// Stop stops the underlying capture and frees the device once
func (c *exclusiveCapture) Stop() error {
	err := c.Capture.Stop()
	c.once.Do(c.release)
	return err
}
