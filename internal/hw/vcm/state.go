package vcm

import "fmt"

// Direction describes how raw position maps onto lens travel.
type Direction int

const (
	Normal Direction = iota
	Reversed
)

func (d Direction) String() string {
	if d == Reversed {
		return "reversed"
	}
	return "normal"
}

// ParseDirection accepts "normal", "reversed" or "" (normal).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "reversed":
		return Reversed, nil
	default:
		return Normal, fmt.Errorf("unknown position direction %q", s)
	}
}

// Calibration holds per-unit tuning read from the module's non-volatile store.
// It is never modified after it has been read.
type Calibration struct {
	ControlMode byte // ACC[7:5], 3 bits meaningful
	Prescale    byte // Scale[2:0]
	AccTime     byte // AT[5:0]
}

// AccMode packs the acceleration-mode register value.
// ControlMode is shifted as a full byte and Prescale is OR-ed unmasked:
// bits beyond the 3-bit and 5-bit fields are not cleared.
func (c Calibration) AccMode() byte {
	return c.ControlMode<<5 | c.Prescale
}

// State is the per-device mutable record. It belongs to one Device and is
// only mutated by that device's operations.
type State struct {
	Position    uint16
	MaxPosition uint16
	PosSizeBit  uint8
	Direction   Direction
	Calibration *Calibration
	LastStatus  BusyStatus
}

// BusyStatus is the busy/not-busy classification of the status register.
type BusyStatus int

const (
	NotBusy BusyStatus = iota
	Busy
)

// ClassifyStatus returns NotBusy iff both busy bits are clear.
func ClassifyStatus(reg byte) BusyStatus {
	if reg&statusBusyMask == 0 {
		return NotBusy
	}
	return Busy
}

func (s BusyStatus) String() string {
	if s == Busy {
		return "busy"
	}
	return "idle"
}

// SoftLandingOutcome reports whether the lens reached rest.
// A failed landing is not an error: the device stays controllable.
type SoftLandingOutcome struct {
	Landed        bool
	FinalPosition uint16
}

func (o SoftLandingOutcome) String() string {
	if o.Landed {
		return "landed"
	}
	return fmt.Sprintf("not landed (final position 0x%X)", o.FinalPosition)
}

// InitStep is one entry of an init-position list. Signed fields keep
// operator-supplied garbage representable so it can be rejected.
type InitStep struct {
	Position int `json:"position" yaml:"position"`
	DelayMs  int `json:"delay_ms" yaml:"delay_ms"`
}

// Override carries the bench/debug inputs the caller passes into
// SetPosition and Initialize. The core only reads it.
type Override struct {
	FixedEnabled  bool
	FixedPosition uint16
	InitSteps     []InitStep
	InitStepCount int
}

// ICInfo is decoded from the identification registers.
type ICInfo struct {
	Manufacturer byte
	Model        byte
	Revision     byte
}

func (i ICInfo) String() string {
	return fmt.Sprintf("manufacturer=0x%X model=0x%X rev=%d", i.Manufacturer, i.Model, i.Revision)
}
