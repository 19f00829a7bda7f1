package regbus

import (
	"fmt"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the 7-bit I²C address of the FP5529.
const DefaultAddr uint16 = 0x0C

// I2C is the real register bus over periph's I²C stack.
type I2C struct {
	c      conn.Conn
	closer i2c.BusCloser // nil when the bus is owned by someone else
}

// NewI2C wraps an already opened bus.
func NewI2C(b i2c.Bus, addr uint16) *I2C {
	return &I2C{c: &i2c.Dev{Bus: b, Addr: addr}}
}

// Open initializes the host drivers and opens the named bus.
// An empty name selects the first available bus.
func Open(name string, addr uint16) (*I2C, error) {
	debug.Info("Opening I2C bus %q addr=0x%02X", name, addr)

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w (is i2c-dev loaded?)", name, err)
	}

	d := NewI2C(b, addr)
	d.closer = b
	return d, nil
}

func (d *I2C) Write8(reg, val byte) error {
	debug.Reg("write8", reg, val)
	if err := d.c.Tx([]byte{reg, val}, nil); err != nil {
		return &Error{Op: "write8", Reg: reg, Err: err}
	}
	return nil
}

func (d *I2C) Read8(reg byte) (byte, error) {
	var r [1]byte
	if err := d.c.Tx([]byte{reg}, r[:]); err != nil {
		return 0, &Error{Op: "read8", Reg: reg, Err: err}
	}
	debug.Reg("read8", reg, r[0])
	return r[0], nil
}

// Write16 relies on the device's register auto-increment.
func (d *I2C) Write16(reg, high, low byte) error {
	debug.Reg("write16", reg, fmt.Sprintf("%02X%02X", high, low))
	if err := d.c.Tx([]byte{reg, high, low}, nil); err != nil {
		return &Error{Op: "write16", Reg: reg, Err: err}
	}
	return nil
}

// Close releases the bus if it was opened by Open.
func (d *I2C) Close() error {
	debug.Trace("I2C Close")
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *I2C) String() string {
	return d.c.String()
}
