package regbus

import "fmt"

// Bus is the narrow register capability the actuator core depends on.
// Addresses are 8-bit register addresses on an already-selected device.
type Bus interface {
	// Write8 writes one byte to a register.
	Write8(reg, val byte) error
	// Read8 reads one byte from a register.
	Read8(reg byte) (byte, error)
	// Write16 writes high to reg and low to reg+1 in a single transaction.
	Write16(reg, high, low byte) error
}

// Error is a transport-level failure of one register transaction.
// The core never retries it.
type Error struct {
	Op  string // "write8", "read8", "write16"
	Reg byte
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus %s reg 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
