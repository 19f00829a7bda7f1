package vcm

import (
	"time"

	"github.com/cjeanneret/lensvcm/internal/debug"
)

// SoftLand retracts the lens to rest with the hardware's landing engine and
// verifies it got there.
//
// Sequence (every stage waits for the busy bits first):
// 1. read current position
// 2. PRESET = 0xFF when position bit 9 is set, else position/2
// 3. CONTROL = RING
// 4. ACC_MODE = mode 101, prescale x1
// 5. LAD_EN = 1
// then re-read the position. A non-zero position is reported in the outcome,
// not as an error.
func (d *Device) SoftLand() (SoftLandingOutcome, error) {
	defer elapsed("SoftLand", time.Now())

	d.WaitUntilNotBusy()
	pos, err := d.ReadPosition()
	if err != nil {
		return SoftLandingOutcome{}, d.landErr(LandReadPosition, err)
	}

	preset := byte(pos >> 1)
	if byte(pos>>8)&0x02 != 0 {
		preset = landingPreset
	}
	debug.Verbose("Soft landing from %d, preset 0x%02X", pos, preset)

	stages := []struct {
		stage LandingStage
		reg   byte
		val   byte
	}{
		{LandPreset, RegPreset, preset},
		{LandRingMode, RegControl, ControlRing},
		{LandAccMode, RegAccMode, landingAccMode},
		{LandEnable, RegLandEnable, landingEnable},
	}
	for _, s := range stages {
		if err := d.bus.Write8(s.reg, s.val); err != nil {
			return SoftLandingOutcome{}, d.landErr(s.stage, err)
		}
		d.WaitUntilNotBusy()
	}

	final, err := d.ReadPosition()
	if err != nil {
		return SoftLandingOutcome{}, d.landErr(LandVerify, err)
	}
	if final > 0 {
		d.State.Position = final
		debug.Warn("Soft landing failed, final position 0x%X", final)
		return SoftLandingOutcome{FinalPosition: final}, nil
	}

	d.State.Position = 0
	debug.Info("Soft landing successful")
	return SoftLandingOutcome{Landed: true}, nil
}

func (d *Device) landErr(stage LandingStage, err error) error {
	debug.Error(err)
	return &SoftLandingError{Stage: stage, Err: err}
}
