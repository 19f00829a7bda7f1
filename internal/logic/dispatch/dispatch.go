package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/lensvcm/internal/caldata"
	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
)

// ControlID identifies a logical actuator control.
type ControlID uint32

const (
	CIDGetStatus ControlID = iota + 1
	CIDSetPosition
	CIDSoftLanding
)

func (c ControlID) String() string {
	switch c {
	case CIDGetStatus:
		return "get-status"
	case CIDSetPosition:
		return "set-position"
	case CIDSoftLanding:
		return "soft-landing"
	}
	return fmt.Sprintf("cid(%#x)", uint32(c))
}

// Control is one control call: the ID and its in/out value.
type Control struct {
	ID    ControlID
	Value int32
}

// Status values reported through CIDGetStatus.
const (
	StatusNotBusy int32 = 0
	StatusBusy    int32 = 1
)

// Cmd selects the direction of an Ioctl.
type Cmd int

const (
	CmdSetCtrl Cmd = iota + 1
	CmdGetCtrl
)

var (
	// ErrRejected is the generic hard failure reported to the host.
	ErrRejected = errors.New("actuator: command rejected")

	// ErrSoftLandingIncomplete matches every *SoftFailure.
	ErrSoftLandingIncomplete = errors.New("actuator: soft landing incomplete")

	ErrNoActuator = errors.New("dispatch: actuator required")
)

// SoftFailure reports a landing that left the lens off its rest position.
// The device stays usable; the host decides what to do.
type SoftFailure struct {
	FinalPosition uint16
}

func (e *SoftFailure) Error() string {
	return fmt.Sprintf("soft landing incomplete, final position 0x%X", e.FinalPosition)
}

func (e *SoftFailure) Is(target error) bool {
	return target == ErrSoftLandingIncomplete
}

// OverrideSource provides the current debug override snapshot.
type OverrideSource interface {
	Snapshot() vcm.Override
}

// Options configures a Dispatcher.
type Options struct {
	// SoftLandingCommand enables CIDSoftLanding.
	SoftLandingCommand bool
	// Overrides may be nil: no override.
	Overrides OverrideSource
	// Calibration may be nil: default init path.
	Calibration caldata.Source
}

// Dispatcher maps host control calls onto one actuator. It keeps no state
// of its own between calls.
type Dispatcher struct {
	act  vcm.Actuator
	opts Options
}

func New(act vcm.Actuator, opts Options) (*Dispatcher, error) {
	if act == nil {
		return nil, ErrNoActuator
	}
	return &Dispatcher{act: act, opts: opts}, nil
}

// Actuator returns the driven actuator.
func (d *Dispatcher) Actuator() vcm.Actuator {
	return d.act
}

// SoftLandingEnabled reports whether CIDSoftLanding is accepted.
func (d *Dispatcher) SoftLandingEnabled() bool {
	return d.opts.SoftLandingCommand
}

func (d *Dispatcher) override() vcm.Override {
	if d.opts.Overrides == nil {
		return vcm.Override{}
	}
	return d.opts.Overrides.Snapshot()
}

func (d *Dispatcher) calibration() *vcm.Calibration {
	if d.opts.Calibration == nil {
		return nil
	}
	cal, err := d.opts.Calibration.Calibration()
	if err != nil {
		debug.Warn("calibration unavailable, using defaults: %v", err)
		return nil
	}
	return cal
}

// Init runs the initialization sequence with the module's calibration.
func (d *Dispatcher) Init() error {
	debug.Live("Command: init")
	if err := d.act.Initialize(d.calibration(), d.override()); err != nil {
		debug.Error(err)
		return err
	}
	return nil
}

// GetStatus reads the busy state. Any failure is reported as ErrRejected.
func (d *Dispatcher) GetStatus() (vcm.BusyStatus, error) {
	st, err := d.act.GetStatus()
	if err != nil {
		debug.Error(err)
		return st, fmt.Errorf("%w: %s: %w", ErrRejected, CIDGetStatus, err)
	}
	return st, nil
}

// SetPosition moves the lens. Values outside the register range are
// rejected before reaching the device unless the fixed override replaces
// them.
func (d *Dispatcher) SetPosition(value int32) error {
	debug.Live("Command: set position %d", value)
	ov := d.override()
	if !ov.FixedEnabled && (value < 0 || value > math.MaxUint16) {
		return fmt.Errorf("%w: %s: %w: %d", ErrRejected, CIDSetPosition, vcm.ErrOutOfRange, value)
	}
	if err := d.act.SetPosition(uint16(value), ov); err != nil {
		debug.Error(err)
		return fmt.Errorf("%w: %s: %w", ErrRejected, CIDSetPosition, err)
	}
	return nil
}

// SoftLand runs the landing sequence. A lens left off rest returns the
// outcome together with a *SoftFailure; a bus failure returns ErrRejected.
func (d *Dispatcher) SoftLand() (vcm.SoftLandingOutcome, error) {
	debug.Live("Command: soft landing")
	if !d.opts.SoftLandingCommand {
		return vcm.SoftLandingOutcome{}, fmt.Errorf("%w: %s not enabled", ErrRejected, CIDSoftLanding)
	}
	out, err := d.act.SoftLand()
	if err != nil {
		debug.Error(err)
		return out, fmt.Errorf("%w: %s: %w", ErrRejected, CIDSoftLanding, err)
	}
	if !out.Landed {
		debug.Warn("Soft landing incomplete, final position 0x%X", out.FinalPosition)
		return out, &SoftFailure{FinalPosition: out.FinalPosition}
	}
	return out, nil
}

// GetCtrl handles a read control.
func (d *Dispatcher) GetCtrl(c *Control) error {
	switch c.ID {
	case CIDGetStatus:
		st, err := d.GetStatus()
		if err != nil {
			return err
		}
		c.Value = StatusNotBusy
		if st == vcm.Busy {
			c.Value = StatusBusy
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown control %s", ErrRejected, c.ID)
	}
}

// SetCtrl handles a write control.
func (d *Dispatcher) SetCtrl(c Control) error {
	switch c.ID {
	case CIDSetPosition:
		return d.SetPosition(c.Value)
	case CIDSoftLanding:
		_, err := d.SoftLand()
		return err
	default:
		return fmt.Errorf("%w: unknown control %s", ErrRejected, c.ID)
	}
}

// Ioctl is the single entry point a host framework calls.
func (d *Dispatcher) Ioctl(cmd Cmd, c *Control) error {
	switch cmd {
	case CmdSetCtrl:
		return d.SetCtrl(*c)
	case CmdGetCtrl:
		return d.GetCtrl(c)
	default:
		return fmt.Errorf("%w: unknown command %d", ErrRejected, cmd)
	}
}
