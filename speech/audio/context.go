package audio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrOutputUnavailable is returned when the output device cannot be created
// or resumed.
var ErrOutputUnavailable = errors.New("audio output device unavailable")

// Output abstracts the hardware audio output so the engine can run against
// a real device or a mock in tests.
type Output interface {
	// NewPlayer creates a player that pulls PCM from r.
	NewPlayer(r io.Reader) (Player, error)
	// Suspend releases the device without destroying it.
	Suspend() error
	// Resume re-acquires a suspended device.
	Resume() error
	// IsReady reports whether the device can schedule playback.
	IsReady() bool
}

// Player is a single scheduled audio source.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// Device is the process-wide oto output resource with an explicit lifecycle.
// Construct one per process, Init it once, and pass it by reference to the
// Engine.
type Device struct {
	mu    sync.Mutex
	ctx   *oto.Context
	ready bool
}

// NewDevice returns an uninitialized output device.
func NewDevice() *Device {
	return &Device{}
}

// Init creates the oto context and blocks until the device is ready.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return nil
	}

	options := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	switch runtime.GOOS {
	case "darwin":
		options.BufferSize = 100 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
	}
	<-ready

	d.ctx = ctx
	d.ready = true
	return nil
}

// NewPlayer creates a player for r. The device must be initialized.
func (d *Device) NewPlayer(r io.Reader) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready || d.ctx == nil {
		return nil, ErrOutputUnavailable
	}
	return d.ctx.NewPlayer(r), nil
}

// Suspend suspends the underlying context.
func (d *Device) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready || d.ctx == nil {
		return ErrOutputUnavailable
	}
	return d.ctx.Suspend()
}

// Resume resumes a suspended context.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready || d.ctx == nil {
		return ErrOutputUnavailable
	}
	return d.ctx.Resume()
}

// IsReady reports whether Init has completed.
func (d *Device) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Teardown suspends the device. oto contexts cannot be destroyed, so this
// is the closest the process gets to releasing the hardware handle.
func (d *Device) Teardown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready || d.ctx == nil {
		return nil
	}
	d.ready = false
	return d.ctx.Suspend()
}
