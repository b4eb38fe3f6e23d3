package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/Jon-Bright/rmtled/config"
	"github.com/Jon-Bright/rmtled/pixarray"
	"github.com/Jon-Bright/rmtled/transport/mmaptx"
	"github.com/Jon-Bright/rmtled/transport/nrzspi"
	"github.com/Jon-Bright/rmtled/transport/periphtx"
	"github.com/Jon-Bright/rmtled/transport/record"
	"github.com/Jon-Bright/rmtled/transport/serialtx"
	"github.com/Jon-Bright/rmtled/ws281x"
)

// An Output pushes the strip's current contents to the LEDs.
type Output interface {
	Show() error
	Close() error
}

type encoderOutput struct {
	enc   *ws281x.Encoder
	close func() error
}

func (o *encoderOutput) Show() error {
	return o.enc.Send()
}

func (o *encoderOutput) Close() error {
	o.enc.Unbind()
	if o.close == nil {
		return nil
	}
	return o.close()
}

func newStrip(cfg *config.Config) (*pixarray.Strip, error) {
	s, err := pixarray.NewStrip(uint8(cfg.BytesPerLED), uint16(cfg.LEDs), uint8(cfg.MaxCCV))
	if err != nil {
		return nil, err
	}
	s.SetStrict(cfg.Strict)
	if cfg.ColorOrder != "" {
		o, err := pixarray.ParseColorOrder(cfg.ColorOrder)
		if err != nil {
			return nil, err
		}
		s.SetColorOrder(o)
	}
	return s, nil
}

func openTransport(cfg *config.Config) (ws281x.Transport, func() error, error) {
	switch cfg.Driver {
	case "dry":
		return &record.Recorder{Limit: 1}, nil, nil
	case "mmap":
		r, err := mmaptx.Open(cfg.Mmap.Path, cfg.Mmap.Offset, cfg.LEDs*cfg.BytesPerLED*8)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "periph":
		return periphtx.New(cfg.Tick), nil, nil
	case "serial":
		b, err := serialtx.Open(&serialtx.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.Serial.ReadTimeoutMs,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// openOutput wires strip to the driver cfg names. Everything but spi goes
// through the pulse encoder.
func openOutput(cfg *config.Config, strip *pixarray.Strip) (Output, error) {
	if cfg.Driver == "spi" {
		s, err := nrzspi.Open(cfg.SPI.Port, strip, physic.Frequency(cfg.SPI.FreqHz)*physic.Hertz)
		if err != nil {
			return nil, err
		}
		log.Info().Stringer("dev", s).Int("leds", strip.NumPixels()).Msg("spi output ready")
		return s, nil
	}
	chip, err := ws281x.ParseChipType(cfg.Chip)
	if err != nil {
		return nil, err
	}
	tx, closer, err := openTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s transport: %w", cfg.Driver, err)
	}
	out, err := newEncoderOutput(chip, tx, cfg, strip)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	out.close = closer
	return out, nil
}

func newEncoderOutput(chip ws281x.ChipType, tx ws281x.Transport, cfg *config.Config, strip *pixarray.Strip) (*encoderOutput, error) {
	enc, err := ws281x.NewEncoder(chip, tx, ws281x.WithTick(cfg.Tick))
	if err != nil {
		return nil, err
	}
	if err := enc.Acquire(cfg.Pin, cfg.Channel); err != nil {
		return nil, err
	}
	if err := enc.Bind(strip); err != nil {
		return nil, err
	}
	lo, hi, _, _ := enc.Templates()
	log.Info().Str("driver", cfg.Driver).Stringer("chip", chip).Int("leds", strip.NumPixels()).
		Int("pin", cfg.Pin).Int("channel", cfg.Channel).Dur("tick", cfg.Tick).
		Uint16("t0h", lo.High).Uint16("t1h", hi.High).Msg("encoder ready")
	return &encoderOutput{enc: enc}, nil
}
