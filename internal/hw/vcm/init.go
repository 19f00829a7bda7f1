package vcm

import (
	"time"

	"github.com/cjeanneret/lensvcm/internal/debug"
)

// Initialize powers the driver through PD, enables ring mode, programs the
// acceleration profile and settles the lens.
//
// Sequence:
// 1. CONTROL = PD
// 2. CONTROL = 0 (normal operation)
// 3. wait PowerOnDelay; no register access is allowed before it elapses
// 4. CONTROL = RING
// 5. ACC_MODE = calibration packing, or DefaultPrescale
// 6. ACC_TIME = calibration acc time, or DefaultAccTime
// 7. init-position settle sequence
//
// A failed write aborts immediately; nothing is rolled back.
func (d *Device) Initialize(cal *Calibration, ov Override) error {
	defer elapsed("Initialize", time.Now())

	accMode, accTime := DefaultPrescale, DefaultAccTime
	if cal != nil {
		accMode, accTime = cal.AccMode(), cal.AccTime
		debug.Verbose("AF cal data: control_mode=0x%02X prescale=0x%02X acc_time=0x%02X",
			cal.ControlMode, cal.Prescale, cal.AccTime)
	} else {
		debug.Verbose("No AF cal data, using defaults")
	}

	if err := d.write(InitPowerDown, RegControl, ControlPowerDown); err != nil {
		return err
	}
	if err := d.write(InitPowerUp, RegControl, 0x00); err != nil {
		return err
	}
	d.sleep(PowerOnDelay)

	if err := d.write(InitRingMode, RegControl, ControlRing); err != nil {
		return err
	}
	if err := d.write(InitAccMode, RegAccMode, accMode); err != nil {
		return err
	}
	if err := d.write(InitAccTime, RegAccTime, accTime); err != nil {
		return err
	}
	d.State.Calibration = cal

	if err := d.InitPosition(ov); err != nil {
		return &InitError{Step: InitPosition, Err: err}
	}

	debug.Info("Actuator initialized (position %d)", d.State.Position)
	return nil
}

func (d *Device) write(step InitStage, reg, val byte) error {
	if err := d.bus.Write8(reg, val); err != nil {
		return &InitError{Step: step, Err: err}
	}
	return nil
}
