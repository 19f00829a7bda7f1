package power

import (
	"time"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/gpio"
)

// Config describes the GPIO that switches an actuator's supply.
type Config struct {
	Pin       int  // BCM number. 0 = no rail, every operation is a no-op.
	ActiveLow bool // true when LOW enables the supply
	Settle    time.Duration
}

// Rail is an optional actuator supply switch.
type Rail struct {
	gpio  gpio.Driver
	cfg   Config
	sleep func(time.Duration)
}

// NewRail configures the pin as output and leaves the supply off.
func NewRail(g gpio.Driver, cfg Config) (*Rail, error) {
	r := &Rail{gpio: g, cfg: cfg, sleep: time.Sleep}
	if cfg.Pin <= 0 {
		return r, nil
	}
	if err := g.Output(cfg.Pin); err != nil {
		return nil, err
	}
	if err := g.Write(cfg.Pin, r.level(false)); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rail) level(on bool) gpio.Level {
	return gpio.Level(on != r.cfg.ActiveLow)
}

// On enables the supply and waits for it to settle.
func (r *Rail) On() error {
	if r.cfg.Pin <= 0 {
		return nil
	}
	debug.Verbose("Power rail on (pin %d)", r.cfg.Pin)
	if err := r.gpio.Write(r.cfg.Pin, r.level(true)); err != nil {
		return err
	}
	r.sleep(r.cfg.Settle)
	return nil
}

// Off cuts the supply.
func (r *Rail) Off() error {
	if r.cfg.Pin <= 0 {
		return nil
	}
	debug.Verbose("Power rail off (pin %d)", r.cfg.Pin)
	return r.gpio.Write(r.cfg.Pin, r.level(false))
}

// IsOn reads the line back. Without a rail the supply is always on.
func (r *Rail) IsOn() (bool, error) {
	if r.cfg.Pin <= 0 {
		return true, nil
	}
	l, err := r.gpio.Read(r.cfg.Pin)
	if err != nil {
		return false, err
	}
	return l == r.level(true), nil
}
