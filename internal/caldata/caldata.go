// Package caldata interprets the actuator calibration block stored in the
// camera module's EEPROM.
package caldata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
)

// Size is the length of the calibration block: control mode, prescale, acc time.
const Size = 3

// Source supplies calibration data. A nil result with a nil error means the
// module carries no calibration and the default init path applies.
type Source interface {
	Calibration() (*vcm.Calibration, error)
}

// Parse reads the block at offset. A region too short to hold it is treated
// as absent.
func Parse(region []byte, offset int) *vcm.Calibration {
	if region == nil || offset < 0 || offset+Size > len(region) {
		return nil
	}
	b := region[offset : offset+Size]
	return &vcm.Calibration{
		ControlMode: b[0],
		Prescale:    b[1],
		AccTime:     b[2],
	}
}

// FileSource reads an EEPROM dump, typically the sysfs "eeprom" node of the
// module's memory chip.
type FileSource struct {
	Path   string
	Offset int
}

func (f FileSource) Calibration() (*vcm.Calibration, error) {
	if f.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		debug.Verbose("No calibration at %s", f.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}

	cal := Parse(data, f.Offset)
	if cal == nil {
		debug.Warn("calibration region %s too short (%d bytes, offset %d), using defaults", f.Path, len(data), f.Offset)
	}
	return cal, nil
}

// Static is a fixed calibration, nil for none.
type Static struct {
	Cal *vcm.Calibration
}

func (s Static) Calibration() (*vcm.Calibration, error) {
	return s.Cal, nil
}
