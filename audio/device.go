// Package audio wraps microphone capture, recorded-chunk buffering and clip
// playback behind small interfaces so the recorder and the views can run
// against sox, a file, or a test fake.
package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned when no capture device can be acquired
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Device acquires an audio input
type Device interface {
	// Open acquires the input and starts capturing. Failures wrap ErrDeviceUnavailable.
	Open(ctx context.Context) (Capture, error)
}

// Capture is one running capture owned by a single recording
type Capture interface {
	// Chunks yields raw audio in arrival order. It is closed once capture has
	// ended and every chunk has been delivered.
	Chunks() <-chan []byte
	// Stop ends capture and releases the device. It is safe to call more than once.
	Stop() error
}

// Player plays one encoded clip. Calls are independent: a new clip may start
// while a previous one is still playing.
type Player interface {
	Play(ctx context.Context, clip []byte) error
}
