package vcm

import (
	"time"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/regbus"
)

// Actuator is the capability set a host framework drives, independent of
// the concrete actuator IC.
type Actuator interface {
	Initialize(cal *Calibration, ov Override) error
	GetStatus() (BusyStatus, error)
	SetPosition(target uint16, ov Override) error
	SoftLand() (SoftLandingOutcome, error)
	// SoftLandOnExit reports whether the host should land the lens before power-off.
	SoftLandOnExit() bool
	Position() uint16
}

var _ Actuator = (*Device)(nil)

// Config holds the per-device capability description.
type Config struct {
	MaxPosition    uint16 // 0 = MaxPosition10Bit
	PosSizeBit     uint8  // 0 = PosSizeBit10
	Direction      Direction
	SoftLandOnExit bool
	// Sleep replaces time.Sleep for every hardware delay. nil = time.Sleep.
	Sleep func(time.Duration)
}

// Device drives one FP5529 voice-coil actuator. It performs no locking:
// the host serializes calls per device.
type Device struct {
	bus            regbus.Bus
	sleep          func(time.Duration)
	softLandOnExit bool

	State State
}

// NewDevice creates a device bound to bus.
func NewDevice(bus regbus.Bus, cfg Config) (*Device, error) {
	if bus == nil {
		return nil, ErrNoBus
	}

	maxPos := cfg.MaxPosition
	if maxPos == 0 {
		maxPos = MaxPosition10Bit
	}
	bits := cfg.PosSizeBit
	if bits == 0 {
		bits = PosSizeBit10
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Device{
		bus:            bus,
		sleep:          sleep,
		softLandOnExit: cfg.SoftLandOnExit,
		State: State{
			MaxPosition: maxPos,
			PosSizeBit:  bits,
			Direction:   cfg.Direction,
		},
	}, nil
}

// Position returns the last position known to be on the device.
func (d *Device) Position() uint16 {
	return d.State.Position
}

func (d *Device) SoftLandOnExit() bool {
	return d.softLandOnExit
}

// Probe reads the identification registers.
func (d *Device) Probe() (ICInfo, error) {
	info, err := d.bus.Read8(RegICInfo)
	if err != nil {
		return ICInfo{}, err
	}
	ver, err := d.bus.Read8(RegICVersion)
	if err != nil {
		return ICInfo{}, err
	}
	id := ICInfo{
		Manufacturer: info >> 4,
		Model:        info & 0x0F,
		Revision:     ver & 0x0F,
	}
	debug.Verbose("Probe: %s", id)
	return id, nil
}

func elapsed(what string, start time.Time) {
	debug.Verbose("%s took %v", what, time.Since(start))
}
