// Package nrzspi drives a strip wired to SPI MOSI rather than to a pulse
// peripheral. periph's nrzled does the bit encoding; only the strip's raw
// bytes are handed over.
package nrzspi

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"

	"github.com/Jon-Bright/rmtled/pixarray"
)

// DefaultFreq is what nrzled expects for 800kHz chips.
const DefaultFreq = 2500 * physic.KiloHertz

type Sink struct {
	strip *pixarray.Strip
	dev   *nrzled.Dev
	port  spi.PortCloser
}

// Open opens SPI port name ("" for the first one) for strip.
func Open(name string, strip *pixarray.Strip, freq physic.Frequency) (*Sink, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("couldn't open SPI port %q: %w", name, err)
	}
	s, err := New(p, strip, freq)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open port. The sink closes it on Close.
func New(p spi.PortCloser, strip *pixarray.Strip, freq physic.Frequency) (*Sink, error) {
	if strip == nil || strip.NumPixels() == 0 {
		return nil, fmt.Errorf("nrzspi: empty strip")
	}
	if freq == 0 {
		freq = DefaultFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: strip.NumPixels(),
		Channels:  int(strip.BytesPerLED()),
		Freq:      freq,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzspi: %w", err)
	}
	return &Sink{strip: strip, dev: d, port: p}, nil
}

func (s *Sink) String() string {
	return s.dev.String()
}

// Show pushes the strip's current contents out.
func (s *Sink) Show() error {
	if _, err := s.dev.Write(s.strip.Bytes()); err != nil {
		return fmt.Errorf("nrzspi: write: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the port.
func (s *Sink) Close() error {
	err := s.dev.Halt()
	if cerr := s.port.Close(); err == nil {
		err = cerr
	}
	return err
}
