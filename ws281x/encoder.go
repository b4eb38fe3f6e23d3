// Package ws281x turns a pixel strip into the pulse train WS281x-family chips
// expect: eight pulses per color byte, most significant bit first, with the
// final low phase stretched into the reset gap that latches the frame.
package ws281x

import (
	"errors"
	"fmt"
	"time"

	"github.com/Jon-Bright/rmtled/pixarray"
)

// DefaultTick is the pulse resolution of an RMT channel clocked from the
// 80MHz APB clock with a divider of 4.
const DefaultTick = 50 * time.Nanosecond

var (
	ErrChipUnset    = errors.New("ws281x: chip type not set")
	ErrTickRange    = errors.New("ws281x: chip timing doesn't fit the tick")
	ErrNotBound     = errors.New("ws281x: encoder not bound to a strip")
	ErrEmptyStrip   = errors.New("ws281x: strip has no data")
	ErrStripChanged = errors.New("ws281x: strip was re-created since Bind")
	ErrColorOrder   = errors.New("ws281x: color order doesn't match the strip")
	ErrNoTransport  = errors.New("ws281x: no transport")
)

// Transport is whatever finally puts the pulses on the wire.
type Transport interface {
	// Acquire claims the output pin and the channel of the pulse peripheral.
	Acquire(pin, channel int) error
	// Send transmits a complete frame. With blocking set it returns only once
	// the frame has been sent or queued. The slice is only valid for the
	// duration of the call.
	Send(pulses []Pulse, blocking bool) error
}

type Option func(*Encoder)

// WithTick sets the length of one transport clock tick.
func WithTick(d time.Duration) Option {
	return func(e *Encoder) {
		e.tick = d
	}
}

// Encoder converts a bound strip into pulses and hands them to a Transport.
// It holds a reference to the strip but doesn't own it; like the strip, it
// does no locking.
type Encoder struct {
	chip   ChipType
	timing Timing
	tick   time.Duration
	tx     Transport

	lo      Pulse
	hi      Pulse
	loReset Pulse
	hiReset Pulse

	strip *pixarray.Strip
	leds  uint16
	width uint8
	seq   []Pulse
}

func NewEncoder(chip ChipType, tx Transport, opts ...Option) (*Encoder, error) {
	e := &Encoder{
		chip: chip,
		tx:   tx,
		tick: DefaultTick,
	}
	for _, o := range opts {
		o(e)
	}
	if chip == ChipUnset {
		return nil, ErrChipUnset
	}
	t, ok := timings[chip]
	if !ok {
		return nil, fmt.Errorf("ws281x: no timing for %v", chip)
	}
	if e.tick <= 0 {
		return nil, fmt.Errorf("%w: tick %v", ErrTickRange, e.tick)
	}
	e.timing = t

	var err error
	ticks := func(d time.Duration) uint16 {
		n := d / e.tick
		if err == nil && (n == 0 || n > MaxDuration) {
			err = fmt.Errorf("%w: %v is %d ticks of %v", ErrTickRange, d, n, e.tick)
		}
		return uint16(n)
	}
	e.lo = Pulse{ticks(t.T0H), ticks(t.T0L)}
	e.hi = Pulse{ticks(t.T1H), ticks(t.T1L)}
	e.loReset = Pulse{e.lo.High, ticks(t.TRS)}
	e.hiReset = Pulse{e.hi.High, e.loReset.Low}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) Chip() ChipType {
	return e.chip
}

func (e *Encoder) Timing() Timing {
	return e.timing
}

func (e *Encoder) Tick() time.Duration {
	return e.tick
}

// Templates returns the pulses for a 0 bit and a 1 bit, and their variants
// carrying the reset gap.
func (e *Encoder) Templates() (lo, hi, loReset, hiReset Pulse) {
	return e.lo, e.hi, e.loReset, e.hiReset
}

// Acquire passes pin and channel on to the transport.
func (e *Encoder) Acquire(pin, channel int) error {
	if e.tx == nil {
		return ErrNoTransport
	}
	if err := e.tx.Acquire(pin, channel); err != nil {
		return fmt.Errorf("ws281x: acquire pin %d channel %d: %w", pin, channel, err)
	}
	return nil
}

// Bind attaches s and sizes the pulse buffer for it. A failed Bind leaves
// the encoder unbound.
func (e *Encoder) Bind(s *pixarray.Strip) error {
	e.Unbind()
	if s == nil || len(s.Bytes()) == 0 {
		return ErrEmptyStrip
	}
	e.strip = s
	e.leds = s.Len()
	e.width = s.BytesPerLED()
	e.seq = make([]Pulse, int(e.leds)*int(e.width)*8)
	return nil
}

func (e *Encoder) Unbind() {
	e.strip = nil
	e.leds = 0
	e.width = 0
	e.seq = nil
}

func (e *Encoder) Bound() bool {
	return e.strip != nil
}

// channelOffsets gives, in wire order, the offset within a pixel of each
// byte to send.
func channelOffsets(o pixarray.ColorOrder, width uint8) ([]int, error) {
	switch o {
	case pixarray.Flat:
		if width == 0 {
			return nil, ErrColorOrder
		}
		offs := make([]int, width)
		for i := range offs {
			offs[i] = i
		}
		return offs, nil
	case pixarray.GRB:
		if width != 3 {
			return nil, fmt.Errorf("%w: GRB on %d bytes per LED", ErrColorOrder, width)
		}
		return []int{1, 0, 2}, nil
	case pixarray.GRBW:
		if width != 4 {
			return nil, fmt.Errorf("%w: GRBW on %d bytes per LED", ErrColorOrder, width)
		}
		return []int{1, 0, 2, 3}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrColorOrder, o)
}

// Encode builds the pulse sequence for the strip's current contents. The
// returned slice is reused by the next Encode.
func (e *Encoder) Encode() ([]Pulse, error) {
	if e.strip == nil {
		return nil, ErrNotBound
	}
	buf := e.strip.Bytes()
	if len(buf) == 0 {
		return nil, ErrEmptyStrip
	}
	if e.strip.Len() != e.leds || e.strip.BytesPerLED() != e.width {
		return nil, ErrStripChanged
	}
	offs, err := channelOffsets(e.strip.ColorOrder(), e.width)
	if err != nil {
		return nil, err
	}

	n := 0
	last := false
	w := int(e.width)
	for i := 0; i < int(e.leds); i++ {
		px := buf[i*w : i*w+w]
		for _, o := range offs {
			b := px[o]
			for mask := byte(0x80); mask != 0; mask >>= 1 {
				last = b&mask != 0
				if last {
					e.seq[n] = e.hi
				} else {
					e.seq[n] = e.lo
				}
				n++
			}
		}
	}
	if last {
		e.seq[n-1] = e.hiReset
	} else {
		e.seq[n-1] = e.loReset
	}
	return e.seq[:n], nil
}

// Send encodes the strip and blocks until the transport has taken the frame.
func (e *Encoder) Send() error {
	seq, err := e.Encode()
	if err != nil {
		return err
	}
	if e.tx == nil {
		return ErrNoTransport
	}
	if err := e.tx.Send(seq, true); err != nil {
		return fmt.Errorf("ws281x: send %d pulses: %w", len(seq), err)
	}
	return nil
}

// Decode reverses Encode for pulses produced with this encoder's timing,
// yielding the bytes in wire order. A pulse counts as a 1 when its high
// phase is closer to T1H than to T0H.
func (e *Encoder) Decode(pulses []Pulse) []byte {
	out := make([]byte, len(pulses)/8)
	mid := (int(e.lo.High) + int(e.hi.High) + 1) / 2
	for i := range out {
		var b byte
		for _, p := range pulses[i*8 : i*8+8] {
			b <<= 1
			if int(p.High) >= mid {
				b |= 1
			}
		}
		out[i] = b
	}
	return out
}
