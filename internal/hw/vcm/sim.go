package vcm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/regbus"
)

const simRegCount = int(RegDecayRatio) + 1

var errSimNoRegister = errors.New("no such register")

// Sim is an in-memory FP5529 used when no hardware is attached and in tests.
// It models the register file, the busy bit after motion and the landing
// engine.
type Sim struct {
	mu        sync.Mutex
	regs      [simRegCount]byte
	busyReads int
	fail      map[byte]error

	// BusyFor is how many status reads report busy after a motion command.
	BusyFor int
	// StuckAt is where the landing engine leaves the lens. 0 = fully landed.
	StuckAt uint16
}

var _ regbus.Bus = (*Sim)(nil)

// NewSim returns a simulated device with datasheet register defaults.
func NewSim() *Sim {
	s := &Sim{fail: make(map[byte]error)}
	s.regs[RegICInfo] = 0xE1
	s.regs[RegAccMode] = 0x01
	s.regs[RegAccTime] = 0x20
	s.regs[RegLandStep] = 0x85
	s.regs[RegDecayRatio] = 0x04
	return s
}

// Fail makes every access to reg return err. A nil err clears it.
func (s *Sim) Fail(reg byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, reg)
		return
	}
	s.fail[reg] = err
}

// Reg returns a register value without side effects.
func (s *Sim) Reg(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

func (s *Sim) check(op string, reg byte) error {
	if int(reg) >= simRegCount {
		return &regbus.Error{Op: op, Reg: reg, Err: errSimNoRegister}
	}
	if err := s.fail[reg]; err != nil {
		return &regbus.Error{Op: op, Reg: reg, Err: err}
	}
	return nil
}

func (s *Sim) Write8(reg, val byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Reg("sim write8", reg, val)

	if err := s.check("write8", reg); err != nil {
		return err
	}
	s.store(reg, val)
	return nil
}

func (s *Sim) Read8(reg byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("read8", reg); err != nil {
		return 0, err
	}
	v := s.regs[reg]
	if reg == RegStatus {
		v = 0
		if s.busyReads > 0 {
			v = StatusVCMBusy
			s.busyReads--
		}
	}
	debug.Reg("sim read8", reg, v)
	return v, nil
}

func (s *Sim) Write16(reg, high, low byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Reg("sim write16", reg, fmt.Sprintf("%02X%02X", high, low))

	if err := s.check("write16", reg); err != nil {
		return err
	}
	if err := s.check("write16", reg+1); err != nil {
		return err
	}
	s.store(reg, high)
	s.store(reg+1, low)
	if reg == RegPosHigh {
		s.busyReads = s.BusyFor
	}
	return nil
}

// store applies one register write. Caller holds mu.
func (s *Sim) store(reg, val byte) {
	switch reg {
	case RegICInfo, RegICVersion, RegStatus:
		// read-only
	case RegPosHigh:
		s.regs[reg] = val & posHighMask
	case RegLandEnable:
		s.regs[reg] = val
		if val&landingEnable != 0 {
			s.regs[RegPosHigh] = byte(s.StuckAt>>8) & posHighMask
			s.regs[RegPosLow] = byte(s.StuckAt)
			s.busyReads = s.BusyFor
		}
	default:
		s.regs[reg] = val
	}
}
