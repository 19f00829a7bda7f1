package vcm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBus is returned when a device is constructed without a bus.
	ErrNoBus = errors.New("vcm: register bus required")

	// ErrOutOfRange matches every *RangeError.
	ErrOutOfRange = errors.New("vcm: position out of range")
)

// RangeError rejects a position before any bus access.
type RangeError struct {
	Target uint16
	Max    uint16
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid position %d (max %d)", e.Target, e.Max)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// InitStage names the register step of Initialize that failed.
type InitStage int

const (
	InitPowerDown InitStage = iota + 1
	InitPowerUp
	InitRingMode
	InitAccMode
	InitAccTime
	InitPosition
)

var initStageNames = map[InitStage]string{
	InitPowerDown: "power-down",
	InitPowerUp:   "power-down clear",
	InitRingMode:  "ring mode",
	InitAccMode:   "acceleration mode",
	InitAccTime:   "acceleration time",
	InitPosition:  "init position",
}

func (s InitStage) String() string {
	if n, ok := initStageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// InitError tags a failure of the initialization sequence with its step.
type InitError struct {
	Step InitStage
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// LandingStage names a stage of the soft-landing sequence.
type LandingStage int

const (
	LandReadPosition LandingStage = iota + 1
	LandPreset
	LandRingMode
	LandAccMode
	LandEnable
	LandVerify
)

func (s LandingStage) String() string {
	switch s {
	case LandReadPosition:
		return "read position"
	case LandPreset:
		return "landing preset"
	case LandRingMode:
		return "ring mode"
	case LandAccMode:
		return "acceleration mode"
	case LandEnable:
		return "landing enable"
	case LandVerify:
		return "verify position"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// SoftLandingError is a bus failure that aborted the landing sequence.
type SoftLandingError struct {
	Stage LandingStage
	Err   error
}

func (e *SoftLandingError) Error() string {
	return fmt.Sprintf("soft landing %s: %v", e.Stage, e.Err)
}

func (e *SoftLandingError) Unwrap() error { return e.Err }
