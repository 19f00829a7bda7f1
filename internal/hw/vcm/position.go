package vcm

import (
	"time"

	"github.com/cjeanneret/lensvcm/internal/debug"
)

// WritePosition validates target and writes it as one packed two-register
// transaction. It does not touch State.Position.
func (d *Device) WritePosition(target uint16) error {
	if target > d.State.MaxPosition {
		return &RangeError{Target: target, Max: d.State.MaxPosition}
	}

	high := byte(target>>8) & posHighMask
	low := byte(target)
	return d.bus.Write16(RegPosHigh, high, low)
}

// ReadPosition reads back the position registers.
func (d *Device) ReadPosition() (uint16, error) {
	high, err := d.bus.Read8(RegPosHigh)
	if err != nil {
		return 0, err
	}
	low, err := d.bus.Read8(RegPosLow)
	if err != nil {
		return 0, err
	}
	return uint16(high&posHighMask)<<8 | uint16(low), nil
}

// SetPosition moves the lens to target, or to the fixed debug position when
// the override enables it.
func (d *Device) SetPosition(target uint16, ov Override) error {
	defer elapsed("SetPosition", time.Now())

	if ov.FixedEnabled {
		debug.Verbose("Fixed position override: %d -> %d", target, ov.FixedPosition)
		target = ov.FixedPosition
	}
	if err := d.WritePosition(target); err != nil {
		return err
	}
	d.State.Position = target

	debug.Live("Position set to %d", target)
	return nil
}

// InitPosition walks the override's init-position list, or the default
// 100 -> 180 sequence when the list is absent or contains an invalid entry.
func (d *Device) InitPosition(ov Override) error {
	steps, ok := d.validInitSteps(ov)
	if !ok {
		steps = defaultInitSteps()
	}

	for _, s := range steps {
		if err := d.WritePosition(uint16(s.Position)); err != nil {
			return err
		}
		d.sleep(time.Duration(s.DelayMs) * time.Millisecond)
	}
	d.State.Position = uint16(steps[len(steps)-1].Position)

	if debug.IsEnabled(debug.LevelVerbose) {
		positions := make([]int, len(steps))
		for i, s := range steps {
			positions[i] = s.Position
		}
		debug.Verbose("Initial positions %v set", positions)
	}
	return nil
}

// validInitSteps returns the first InitStepCount entries when every one of
// them is usable. A position above MaxPosition counts as invalid so that a
// bad table falls back instead of failing bring-up.
func (d *Device) validInitSteps(ov Override) ([]InitStep, bool) {
	n := ov.InitStepCount
	if n <= 0 || n > len(ov.InitSteps) {
		return nil, false
	}
	steps := ov.InitSteps[:n]
	for _, s := range steps {
		if s.Position < 0 || s.Position > int(d.State.MaxPosition) {
			debug.Warn("invalid init position %d, using default sequence", s.Position)
			return nil, false
		}
		if s.DelayMs < 0 {
			debug.Warn("invalid init delay %d, using default sequence", s.DelayMs)
			return nil, false
		}
	}
	return steps, true
}
