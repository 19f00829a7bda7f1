// Package override owns the bench/debug knobs: a fixed position that
// replaces every commanded position, and the init-position list used during
// bring-up. The actuator core only ever sees immutable snapshots.
package override

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
)

// MaxInitSteps bounds the init-position list.
const MaxInitSteps = 16

// Settings is the externally visible form of the knobs.
type Settings struct {
	FixedEnabled  bool           `json:"enable_fixed"`
	FixedPosition uint16         `json:"fixed_position"`
	InitSteps     []vcm.InitStep `json:"init_positions"`
}

// Store holds the current settings. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	cur Settings
}

// NewStore creates a store seeded with s.
func NewStore(s Settings) (*Store, error) {
	st := &Store{}
	if err := st.Set(s); err != nil {
		return nil, err
	}
	return st, nil
}

// Set replaces all settings. Entries of the list are not range-checked here:
// the core falls back to its default sequence on bad entries.
func (s *Store) Set(n Settings) error {
	if len(n.InitSteps) > MaxInitSteps {
		return fmt.Errorf("init_positions: at most %d steps, got %d", MaxInitSteps, len(n.InitSteps))
	}
	steps := append([]vcm.InitStep(nil), n.InitSteps...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Settings{FixedEnabled: n.FixedEnabled, FixedPosition: n.FixedPosition, InitSteps: steps}
	debug.Verbose("Override settings: fixed=%v(%d) init=%v", n.FixedEnabled, n.FixedPosition, steps)
	return nil
}

// SetFixed enables or disables the fixed position.
func (s *Store) SetFixed(enabled bool, position uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.FixedEnabled = enabled
	s.cur.FixedPosition = position
	debug.Live("Fixed position override: enabled=%v position=%d", enabled, position)
}

// SetInitSteps replaces the init-position list.
func (s *Store) SetInitSteps(steps []vcm.InitStep) error {
	if len(steps) > MaxInitSteps {
		return fmt.Errorf("init_positions: at most %d steps, got %d", MaxInitSteps, len(steps))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.InitSteps = append([]vcm.InitStep(nil), steps...)
	return nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cur
	c.InitSteps = append([]vcm.InitStep(nil), s.cur.InitSteps...)
	return c
}

// Snapshot returns the value passed into the actuator core.
func (s *Store) Snapshot() vcm.Override {
	c := s.Settings()
	return vcm.Override{
		FixedEnabled:  c.FixedEnabled,
		FixedPosition: c.FixedPosition,
		InitSteps:     c.InitSteps,
		InitStepCount: len(c.InitSteps),
	}
}
