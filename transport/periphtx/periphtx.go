// Package periphtx plays frames on a GPIO pin that can stream bits, such as a
// pin backed by a DMA or PIO engine, through periph.io.
package periphtx

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/physic"

	"github.com/Jon-Bright/rmtled/ws281x"
)

var (
	ErrNotAcquired = errors.New("periphtx: send before acquire")
	ErrNoStream    = errors.New("periphtx: pin can't stream")
)

// Streamer sends every pulse as one bit per tick, so the stream runs at the
// encoder's tick rate.
type Streamer struct {
	freq    physic.Frequency
	pin     gpiostream.PinOut
	channel int
	bits    gpiostream.BitStream
}

func New(tick time.Duration) *Streamer {
	f := physic.PeriodToFrequency(tick)
	return &Streamer{
		freq: f,
		bits: gpiostream.BitStream{Freq: f},
	}
}

func (s *Streamer) Frequency() physic.Frequency {
	return s.freq
}

// Acquire looks up GPIO<pin>. The channel is kept for reference only; the pin
// driver decides which engine streams it.
func (s *Streamer) Acquire(pin, channel int) error {
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return fmt.Errorf("periphtx: no pin %s", name)
	}
	if r, ok := p.(gpio.RealPin); ok {
		p = r.Real()
	}
	po, ok := p.(gpiostream.PinOut)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoStream, name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("periphtx: couldn't drive %s low: %w", name, err)
	}
	s.pin = po
	s.channel = channel
	return nil
}

// Send always blocks: StreamOut only returns once the stream has played.
func (s *Streamer) Send(pulses []ws281x.Pulse, blocking bool) error {
	if s.pin == nil {
		return ErrNotAcquired
	}
	s.bits.Bits = Rasterize(s.bits.Bits[:0], pulses)
	if err := s.pin.StreamOut(&s.bits); err != nil {
		return fmt.Errorf("periphtx: stream to %s: %w", s.pin.Name(), err)
	}
	return nil
}

// Rasterize appends the pulses to dst as an MSB-first bit stream, one bit per
// tick. The last byte is padded with low bits, which only lengthens the
// reset gap.
func Rasterize(dst []byte, pulses []ws281x.Pulse) []byte {
	total := 0
	for _, p := range pulses {
		total += p.Ticks()
	}
	start := len(dst)
	n := (total + 7) / 8
	if cap(dst)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+n]
	out := dst[start:]
	for i := range out {
		out[i] = 0
	}
	bit := 0
	for _, p := range pulses {
		for j := 0; j < int(p.High); j++ {
			out[bit>>3] |= 0x80 >> uint(bit&7)
			bit++
		}
		bit += int(p.Low)
	}
	return dst
}
