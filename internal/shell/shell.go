// Package shell is the interactive bench console.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"

	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
	"github.com/cjeanneret/lensvcm/internal/logic/dispatch"
	"github.com/cjeanneret/lensvcm/internal/logic/registry"
	"github.com/cjeanneret/lensvcm/internal/override"
)

// Printer is the output side of an ishell context.
type Printer interface {
	Println(val ...interface{})
	Printf(format string, val ...interface{})
}

// Actuators is the part of the registry the console needs.
type Actuators interface {
	Entries() []*registry.Entry
	Lookup(sensorID, place int) (*registry.Entry, error)
}

type command struct {
	name string
	help string
	run  func(p Printer, args []string) error
}

// Console binds commands to the actuators and the override store.
type Console struct {
	acts Actuators
	ov   *override.Store
	cmds []command
}

func New(acts Actuators, ov *override.Store) *Console {
	c := &Console{acts: acts, ov: ov}
	c.cmds = []command{
		{"list", "list", c.list},
		{"init", "init <sensor> <place> | init all", c.initialize},
		{"status", "status <sensor> <place>", c.status},
		{"move", "move <sensor> <place> <position>", c.move},
		{"softland", "softland <sensor> <place>", c.softland},
		{"fixed", "fixed [off | <position>]", c.fixed},
		{"steps", "steps [clear | <position>:<delay_ms> ...]", c.steps},
	}
	return c
}

// Exec runs one command line.
func (c *Console) Exec(p Printer, name string, args []string) error {
	for _, cmd := range c.cmds {
		if cmd.name == name {
			return cmd.run(p, args)
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

// Run starts the interactive shell and blocks until it exits or ctx is done.
func (c *Console) Run(ctx context.Context) {
	sh := ishell.New()
	sh.Println("Lens VCM bench shell")
	sh.ShowPrompt(true)

	for _, cmd := range c.cmds {
		sh.AddCmd(&ishell.Cmd{
			Name: cmd.name,
			Help: cmd.help,
			Func: func(ic *ishell.Context) {
				if err := cmd.run(ic, ic.Args); err != nil {
					ic.Err(err)
				}
			},
		})
	}

	go func() {
		<-ctx.Done()
		sh.Close()
	}()
	sh.Run()
}

func (c *Console) lookup(args []string) (*registry.Entry, error) {
	if len(args) < 2 {
		return nil, errors.New("expected <sensor> <place>")
	}
	sensor, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid sensor %q", args[0])
	}
	place, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid place %q", args[1])
	}
	return c.acts.Lookup(sensor, place)
}

func (c *Console) list(p Printer, _ []string) error {
	p.Printf("%-10s %6s %5s %8s %5s %5s %8s\n", "NAME", "SENSOR", "PLACE", "POSITION", "BUSY", "INIT", "FAILURES")
	for _, e := range c.acts.Entries() {
		s := e.Snapshot()
		p.Printf("%-10s %6d %5d %8d %5v %5v %8d\n", s.Name, s.SensorID, s.Place, s.Position, s.Busy, s.Initialized, s.InitFailures)
	}
	return nil
}

func (c *Console) initialize(p Printer, args []string) error {
	if len(args) == 1 && args[0] == "all" {
		for _, e := range c.acts.Entries() {
			if err := e.Init(); err != nil {
				return err
			}
			p.Printf("%s (sensor %d place %d) initialized\n", e.Name, e.SensorID, e.Place)
		}
		return nil
	}
	e, err := c.lookup(args)
	if err != nil {
		return err
	}
	if err := e.Init(); err != nil {
		return err
	}
	p.Printf("%s initialized at %d\n", e.Name, e.Snapshot().Position)
	return nil
}

func (c *Console) status(p Printer, args []string) error {
	e, err := c.lookup(args)
	if err != nil {
		return err
	}
	st, err := e.Status()
	if err != nil {
		return err
	}
	p.Printf("%s: %s, position %d\n", e.Name, st, e.Snapshot().Position)
	return nil
}

func (c *Console) move(p Printer, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: move <sensor> <place> <position>")
	}
	e, err := c.lookup(args)
	if err != nil {
		return err
	}
	pos, err := strconv.ParseInt(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid position %q", args[2])
	}
	if err := e.Move(int32(pos)); err != nil {
		return err
	}
	p.Printf("%s at %d\n", e.Name, e.Snapshot().Position)
	return nil
}

func (c *Console) softland(p Printer, args []string) error {
	e, err := c.lookup(args)
	if err != nil {
		return err
	}
	_, err = e.SoftLand()
	var sf *dispatch.SoftFailure
	if errors.As(err, &sf) {
		p.Printf("%s: soft landing incomplete, lens at 0x%X\n", e.Name, sf.FinalPosition)
		return nil
	}
	if err != nil {
		return err
	}
	p.Printf("%s landed\n", e.Name)
	return nil
}

func (c *Console) fixed(p Printer, args []string) error {
	switch {
	case len(args) == 0:
	case args[0] == "off":
		c.ov.SetFixed(false, 0)
	default:
		pos, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil || pos > uint64(vcm.MaxPosition10Bit) {
			return fmt.Errorf("fixed position must be 0..%d", vcm.MaxPosition10Bit)
		}
		c.ov.SetFixed(true, uint16(pos))
	}
	s := c.ov.Settings()
	p.Printf("fixed position: enabled=%v position=%d\n", s.FixedEnabled, s.FixedPosition)
	return nil
}

func (c *Console) steps(p Printer, args []string) error {
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0] == "clear":
		if err := c.ov.SetInitSteps(nil); err != nil {
			return err
		}
	default:
		steps, err := ParseSteps(args)
		if err != nil {
			return err
		}
		if err := c.ov.SetInitSteps(steps); err != nil {
			return err
		}
	}
	s := c.ov.Settings()
	if len(s.InitSteps) == 0 {
		p.Println("init positions: default sequence")
		return nil
	}
	parts := make([]string, len(s.InitSteps))
	for i, st := range s.InitSteps {
		parts[i] = fmt.Sprintf("%d:%d", st.Position, st.DelayMs)
	}
	p.Printf("init positions: %s\n", strings.Join(parts, " "))
	return nil
}

// ParseSteps parses "<position>:<delay_ms>" tokens.
func ParseSteps(args []string) ([]vcm.InitStep, error) {
	steps := make([]vcm.InitStep, 0, len(args))
	for _, a := range args {
		pos, delay, ok := strings.Cut(a, ":")
		if !ok {
			return nil, fmt.Errorf("step %q: expected <position>:<delay_ms>", a)
		}
		p, err := strconv.Atoi(pos)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid position", a)
		}
		d, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid delay", a)
		}
		steps = append(steps, vcm.InitStep{Position: p, DelayMs: d})
	}
	return steps, nil
}
