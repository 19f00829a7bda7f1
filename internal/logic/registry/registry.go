// Package registry builds one actuator per (sensor, place) pair from the
// configuration and serializes access per physical device.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/lensvcm/internal/caldata"
	"github.com/cjeanneret/lensvcm/internal/config"
	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/gpio"
	"github.com/cjeanneret/lensvcm/internal/hw/power"
	"github.com/cjeanneret/lensvcm/internal/hw/regbus"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
	"github.com/cjeanneret/lensvcm/internal/logic/dispatch"
)

var ErrNotFound = errors.New("registry: no actuator for sensor/place")

// BusOpener returns the register bus of the physical device described by a.
// A returned bus implementing io.Closer is closed on Shutdown.
type BusOpener func(a config.ActuatorConfig) (regbus.Bus, error)

// Options carries the shared dependencies of every entry.
type Options struct {
	OpenBus   BusOpener
	GPIO      gpio.Driver
	Overrides dispatch.OverrideSource
	// Sleep replaces time.Sleep in the actuator core. nil = time.Sleep.
	Sleep func(time.Duration)
}

// physical is one FP5529 on the bus. Its mutex is the exclusion scope for
// every entry bound to it.
type physical struct {
	key     string
	mu      sync.Mutex
	bus     regbus.Bus
	rail    *power.Rail
	entries []*Entry
	closed  bool
}

// Entry is the actuator serving one (sensor, place) pair.
type Entry struct {
	Name     string
	SensorID int
	Place    int

	Device     *vcm.Device
	Dispatcher *dispatch.Dispatcher

	phys         *physical
	initialized  bool
	initFailures int
}

// Snapshot is a point-in-time view of an entry.
type Snapshot struct {
	Name         string `json:"name"`
	SensorID     int    `json:"sensor_id"`
	Place        int    `json:"place"`
	Device       string `json:"device"`
	Initialized  bool   `json:"initialized"`
	Position     uint16 `json:"position"`
	MaxPosition  uint16 `json:"max_position"`
	Busy         bool   `json:"busy"`
	InitFailures int    `json:"init_failures"`
	SoftLanding  bool   `json:"soft_landing"`
}

// Registry owns every configured actuator.
type Registry struct {
	devices []*physical
	entries []*Entry
	index   map[[2]int]*Entry
}

// New opens each physical device once and creates its entries.
func New(cfgs []config.ActuatorConfig, opts Options) (*Registry, error) {
	if opts.OpenBus == nil {
		return nil, errors.New("registry: bus opener required")
	}
	if opts.GPIO == nil {
		return nil, errors.New("registry: GPIO driver required")
	}

	r := &Registry{index: make(map[[2]int]*Entry)}
	byKey := make(map[string]*physical)

	for _, a := range cfgs {
		p, ok := byKey[a.DeviceKey()]
		if !ok {
			var err error
			if p, err = openPhysical(a, opts); err != nil {
				r.closeAll()
				return nil, err
			}
			byKey[p.key] = p
			r.devices = append(r.devices, p)
		}

		dir, err := vcm.ParseDirection(a.Direction)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}

		for _, id := range a.SensorIDs {
			dev, err := vcm.NewDevice(p.bus, vcm.Config{
				MaxPosition:    uint16(a.MaxPosition),
				PosSizeBit:     uint8(a.PosSizeBit),
				Direction:      dir,
				SoftLandOnExit: a.LandOnExit(),
				Sleep:          opts.Sleep,
			})
			if err != nil {
				r.closeAll()
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			disp, err := dispatch.New(dev, dispatch.Options{
				SoftLandingCommand: a.LandCommand(),
				Overrides:          opts.Overrides,
				Calibration:        caldata.FileSource{Path: a.Calibration.File, Offset: a.Calibration.Offset},
			})
			if err != nil {
				r.closeAll()
				return nil, err
			}

			e := &Entry{
				Name:       a.Name,
				SensorID:   id,
				Place:      a.Place,
				Device:     dev,
				Dispatcher: disp,
				phys:       p,
			}
			if _, dup := r.index[[2]int{id, a.Place}]; dup {
				r.closeAll()
				return nil, fmt.Errorf("%s: sensor %d place %d registered twice", a.Name, id, a.Place)
			}
			r.index[[2]int{id, a.Place}] = e
			r.entries = append(r.entries, e)
			p.entries = append(p.entries, e)
			debug.Verbose("Registered %s: sensor %d place %d on %s", a.Name, id, a.Place, p.key)
		}
	}
	return r, nil
}

func openPhysical(a config.ActuatorConfig, opts Options) (*physical, error) {
	bus, err := opts.OpenBus(a)
	if err != nil {
		return nil, fmt.Errorf("%s: open bus: %w", a.Name, err)
	}
	rail, err := power.NewRail(opts.GPIO, power.Config{
		Pin:       a.PowerPin,
		ActiveLow: a.PowerActiveLow,
		Settle:    a.PowerSettle(),
	})
	if err != nil {
		closeBus(bus)
		return nil, fmt.Errorf("%s: power rail: %w", a.Name, err)
	}
	return &physical{key: a.DeviceKey(), bus: bus, rail: rail}, nil
}

func closeBus(b regbus.Bus) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Registry) closeAll() {
	for _, p := range r.devices {
		closeBus(p.bus)
	}
}

// Lookup returns the entry serving (sensorID, place).
func (r *Registry) Lookup(sensorID, place int) (*Entry, error) {
	e, ok := r.index[[2]int{sensorID, place}]
	if !ok {
		return nil, fmt.Errorf("%w: sensor %d place %d", ErrNotFound, sensorID, place)
	}
	return e, nil
}

// Entries returns every entry in configuration order.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

// InitAll brings every entry up. Independent physical devices are
// initialized in parallel; entries of one device run in order. The first
// failure cancels the devices that have not started yet.
func (r *Registry) InitAll(ctx context.Context) error {
	debug.Section("Actuator bring-up")
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.devices {
		g.Go(func() error {
			for _, e := range p.entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := e.Init(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown soft-lands every initialized entry whose exit policy asks for
// it, then cuts the supplies and releases the buses. A lens that did not
// reach rest is logged, not reported as an error.
func (r *Registry) Shutdown() error {
	debug.Section("Shutdown")
	var errs error
	for _, p := range r.devices {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			continue
		}
		for _, e := range p.entries {
			if !e.initialized || !e.Device.SoftLandOnExit() {
				continue
			}
			out, err := e.Device.SoftLand()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.Name, err))
				continue
			}
			if !out.Landed {
				debug.Warn("%s: lens not at rest on exit, position 0x%X", e.Name, out.FinalPosition)
			}
			e.initialized = false
		}
		errs = multierr.Append(errs, p.rail.Off())
		errs = multierr.Append(errs, closeBus(p.bus))
		p.closed = true
		p.mu.Unlock()
	}
	return errs
}

// Init powers the device, probes it and runs the initialization sequence.
// A bus failure increments the entry's failure counter.
func (e *Entry) Init() error {
	p := e.phys
	p.mu.Lock()
	defer p.mu.Unlock()

	debug.Live("Init %s (sensor %d place %d)", e.Name, e.SensorID, e.Place)
	if err := p.rail.On(); err != nil {
		return fmt.Errorf("%s: power rail: %w", e.Name, err)
	}
	if info, err := e.Device.Probe(); err != nil {
		debug.Warn("%s: probe failed: %v", e.Name, err)
	} else {
		debug.Info("%s: %s", e.Name, info)
	}

	if err := e.Dispatcher.Init(); err != nil {
		var be *regbus.Error
		if errors.As(err, &be) {
			e.initFailures++
		}
		e.initialized = false
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	e.initialized = true
	return nil
}

// Ioctl forwards a control call under the device lock.
func (e *Entry) Ioctl(cmd dispatch.Cmd, c *dispatch.Control) error {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.Dispatcher.Ioctl(cmd, c)
}

// Status reads the busy state.
func (e *Entry) Status() (vcm.BusyStatus, error) {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.Dispatcher.GetStatus()
}

// Move commands a new lens position.
func (e *Entry) Move(position int32) error {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.Dispatcher.SetPosition(position)
}

// SoftLand runs the landing sequence through the soft-landing control.
func (e *Entry) SoftLand() (vcm.SoftLandingOutcome, error) {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.Dispatcher.SoftLand()
}

// Snapshot reports the cached state without touching the bus.
func (e *Entry) Snapshot() Snapshot {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.snapshot()
}

// Poll refreshes the busy state of an initialized entry and reports it.
func (e *Entry) Poll() Snapshot {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	if e.initialized {
		if _, err := e.Device.GetStatus(); err != nil {
			debug.Trace("%s: status poll: %v", e.Name, err)
		}
	}
	return e.snapshot()
}

func (e *Entry) snapshot() Snapshot {
	st := e.Device.State
	return Snapshot{
		Name:         e.Name,
		SensorID:     e.SensorID,
		Place:        e.Place,
		Device:       e.phys.key,
		Initialized:  e.initialized,
		Position:     st.Position,
		MaxPosition:  st.MaxPosition,
		Busy:         st.LastStatus == vcm.Busy,
		InitFailures: e.initFailures,
		SoftLanding:  e.Dispatcher.SoftLandingEnabled(),
	}
}

// InitFailures returns the number of bus failures seen during Init.
func (e *Entry) InitFailures() int {
	e.phys.mu.Lock()
	defer e.phys.mu.Unlock()
	return e.initFailures
}
