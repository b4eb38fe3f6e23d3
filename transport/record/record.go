// Package record is a Transport that keeps every frame it's given, for tests
// and for running the daemon without hardware.
package record

import (
	"errors"
	"sync"

	"github.com/Jon-Bright/rmtled/ws281x"
)

var ErrNotAcquired = errors.New("record: send before acquire")

type Recorder struct {
	mu sync.Mutex

	// RequireAcquire makes Send fail until Acquire has been called.
	RequireAcquire bool
	// Err, if set, is returned from every Acquire and Send.
	Err error
	// Limit caps the number of frames kept; older frames are dropped. Zero
	// keeps everything.
	Limit int

	acquired bool
	pin      int
	channel  int
	frames   [][]ws281x.Pulse
	blocking []bool
	sent     int
}

func (r *Recorder) Acquire(pin, channel int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.acquired = true
	r.pin = pin
	r.channel = channel
	return nil
}

func (r *Recorder) Send(pulses []ws281x.Pulse, blocking bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.RequireAcquire && !r.acquired {
		return ErrNotAcquired
	}
	r.frames = append(r.frames, append([]ws281x.Pulse(nil), pulses...))
	r.blocking = append(r.blocking, blocking)
	if r.Limit > 0 && len(r.frames) > r.Limit {
		r.frames = r.frames[len(r.frames)-r.Limit:]
		r.blocking = r.blocking[len(r.blocking)-r.Limit:]
	}
	r.sent++
	return nil
}

// Pin returns what Acquire was last called with.
func (r *Recorder) Pin() (pin, channel int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pin, r.channel, r.acquired
}

// Frames returns the kept frames, oldest first.
func (r *Recorder) Frames() [][]ws281x.Pulse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]ws281x.Pulse(nil), r.frames...)
}

// Last returns the most recent frame and whether it was sent blocking.
func (r *Recorder) Last() ([]ws281x.Pulse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil, false
	}
	return r.frames[len(r.frames)-1], r.blocking[len(r.blocking)-1]
}

// Sent counts every successful Send, including dropped frames.
func (r *Recorder) Sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.blocking = nil
	r.sent = 0
}
