package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/Jon-Bright/rmtled/config"
)

// power switches the LEDs' supply through an optional control pin, and
// optionally waits for a status pin to report healthy power.
type power struct {
	ctrl   gpio.PinIO
	status gpio.PinIO
	wait   time.Duration
	poll   time.Duration
}

func newPower(cfg config.Power) (*power, error) {
	p := &power{wait: cfg.StatusWait, poll: 50 * time.Millisecond}
	if cfg.CtrlPin == "" {
		return p, nil
	}
	p.ctrl = gpioreg.ByName(cfg.CtrlPin)
	if p.ctrl == nil {
		return nil, fmt.Errorf("no power control pin %s", cfg.CtrlPin)
	}
	if err := p.ctrl.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("couldn't set power control to output: %w", err)
	}
	if cfg.StatusPin == "" {
		return p, nil
	}
	p.status = gpioreg.ByName(cfg.StatusPin)
	if p.status == nil {
		return nil, fmt.Errorf("no power status pin %s", cfg.StatusPin)
	}
	if err := p.status.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("couldn't set power status to input: %w", err)
	}
	return p, nil
}

func (p *power) on() error {
	if p == nil || p.ctrl == nil {
		return nil
	}
	log.Info().Str("pin", p.ctrl.Name()).Msg("power on")
	if err := p.ctrl.Out(gpio.High); err != nil {
		return fmt.Errorf("couldn't set power control high: %w", err)
	}
	if p.status == nil {
		return nil
	}
	start := time.Now()
	for {
		t := time.Now()
		if p.status.Read() == gpio.High {
			log.Info().Dur("after", t.Sub(start)).Msg("power stabilized")
			return nil
		}
		if t.Sub(start) > p.wait {
			return fmt.Errorf("timed out waiting for power to be healthy, started %v, now %v", start, t)
		}
		// No point overdoing it - we're not in _that_ much of a rush
		time.Sleep(p.poll)
	}
}

func (p *power) off() error {
	if p == nil || p.ctrl == nil {
		return nil
	}
	log.Info().Str("pin", p.ctrl.Name()).Msg("power off")
	if err := p.ctrl.Out(gpio.Low); err != nil {
		return fmt.Errorf("couldn't set power control low: %w", err)
	}
	// Status going low can take a while and nothing waits on it.
	return nil
}
