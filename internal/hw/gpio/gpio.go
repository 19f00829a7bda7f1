package gpio

import (
	"sync"

	"github.com/cjeanneret/lensvcm/internal/debug"
)

// Level represents the logical state of a GPIO line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver is the GPIO capability used to switch actuator supply rails.
// It lets the real Raspberry Pi backend be swapped for a mock on a PC.
type Driver interface {
	Output(pin int) error
	Write(pin int, level Level) error
	Read(pin int) (Level, error)
	Close() error
}

// NewDriver returns a MockDriver when mock is true, otherwise the go-rpio
// backend.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiDriver()
}

// MockDriver keeps line levels in memory.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
}

func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) Output(pin int) error {
	debug.Pin("Output", pin, nil)
	return nil
}

func (m *MockDriver) Write(pin int, level Level) error {
	debug.Pin("Write", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) Read(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
