package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	readChunkSize = 4096
	stopGrace     = 2 * time.Second
)

// SoxDevice captures the default microphone by running an external recorder
// (sox by default) that writes a WAV stream to stdout
type SoxDevice struct {
	command []string
}

// NewSoxDevice creates a device from a command line such as "sox -d -q -t wav -"
func NewSoxDevice(commandLine string) *SoxDevice {
	return &SoxDevice{command: strings.Fields(commandLine)}
}

// Open starts the recorder process
func (d *SoxDevice) Open(ctx context.Context) (Capture, error) {
	if len(d.command) == 0 {
		return nil, fmt.Errorf("%w: no record command configured", ErrDeviceUnavailable)
	}
	if _, err := exec.LookPath(d.command[0]); err != nil {
		return nil, fmt.Errorf("%w: %s not found (is sox installed?)", ErrDeviceUnavailable, d.command[0])
	}

	cmd := exec.Command(d.command[0], d.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s stdout: %v", ErrDeviceUnavailable, d.command[0], err)
	}
	cmd.Stderr = io.Discard

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, d.command[0], err)
	}

	c := &processCapture{
		cmd:    cmd,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c, nil
}

type processCapture struct {
	cmd     *exec.Cmd
	chunks  chan []byte
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

func (c *processCapture) Chunks() <-chan []byte {
	return c.chunks
}

func (c *processCapture) readLoop(stdout io.Reader) {
	defer close(c.done)
	defer close(c.chunks)

	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Stop interrupts the recorder so it can finish its output, then kills it
// if it has not exited within the grace period
func (c *processCapture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-c.done:
	case <-time.After(stopGrace):
		log.Printf("⚠️ Recorder did not exit after interrupt, killing pid %d", c.cmd.Process.Pid)
		_ = c.cmd.Process.Kill()
		<-c.done
	}

	err := c.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Interrupted recorders exit non-zero
		return nil
	}
	return err
}

// SoxPlayer plays each clip with its own player process
type SoxPlayer struct {
	command []string
}

// NewSoxPlayer creates a player from a command line such as "sox -q -t mp3 - -d"
func NewSoxPlayer(commandLine string) *SoxPlayer {
	return &SoxPlayer{command: strings.Fields(commandLine)}
}

// Play pipes clip to a new player process and returns once it has started.
// Playback runs in the background so clips may overlap.
func (p *SoxPlayer) Play(ctx context.Context, clip []byte) error {
	if len(p.command) == 0 {
		return fmt.Errorf("no playback command configured")
	}
	if _, err := exec.LookPath(p.command[0]); err != nil {
		return fmt.Errorf("%s not found (is sox installed?)", p.command[0])
	}

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(clip)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command[0], err)
	}

	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Printf("⚠️ Playback exited: %v", err)
		}
	}()
	return nil
}
