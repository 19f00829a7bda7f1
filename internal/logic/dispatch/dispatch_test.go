package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/lensvcm/internal/caldata"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
)

// fakeActuator records calls and returns canned results.
type fakeActuator struct {
	status     vcm.BusyStatus
	statusErr  error
	setErr     error
	landOut    vcm.SoftLandingOutcome
	landErr    error
	initErr    error
	position   uint16
	lastTarget uint16
	lastOv     vcm.Override
	lastCal    *vcm.Calibration
	calls      []string
}

func (f *fakeActuator) Initialize(cal *vcm.Calibration, ov vcm.Override) error {
	f.calls = append(f.calls, "init")
	f.lastCal, f.lastOv = cal, ov
	return f.initErr
}

func (f *fakeActuator) GetStatus() (vcm.BusyStatus, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.statusErr
}

func (f *fakeActuator) SetPosition(target uint16, ov vcm.Override) error {
	f.calls = append(f.calls, "set")
	f.lastTarget, f.lastOv = target, ov
	if f.setErr != nil {
		return f.setErr
	}
	f.position = target
	return nil
}

func (f *fakeActuator) SoftLand() (vcm.SoftLandingOutcome, error) {
	f.calls = append(f.calls, "land")
	return f.landOut, f.landErr
}

func (f *fakeActuator) SoftLandOnExit() bool { return true }

func (f *fakeActuator) Position() uint16 { return f.position }

type staticOverride vcm.Override

func (s staticOverride) Snapshot() vcm.Override { return vcm.Override(s) }

func newDispatcher(t *testing.T, act vcm.Actuator, opts Options) *Dispatcher {
	t.Helper()
	d, err := New(act, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNew_RequiresActuator(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, ErrNoActuator) {
		t.Errorf("New(nil) err = %v, want ErrNoActuator", err)
	}
}

func TestGetCtrl_Status(t *testing.T) {
	cases := []struct {
		status vcm.BusyStatus
		want   int32
	}{
		{vcm.NotBusy, StatusNotBusy},
		{vcm.Busy, StatusBusy},
	}
	for _, tc := range cases {
		act := &fakeActuator{status: tc.status}
		d := newDispatcher(t, act, Options{})

		c := Control{ID: CIDGetStatus, Value: -7}
		if err := d.Ioctl(CmdGetCtrl, &c); err != nil {
			t.Fatalf("Ioctl: %v", err)
		}
		if c.Value != tc.want {
			t.Errorf("status %v reported as %d, want %d", tc.status, c.Value, tc.want)
		}
	}
}

func TestGetCtrl_StatusErrorRejected(t *testing.T) {
	busErr := errors.New("nack")
	d := newDispatcher(t, &fakeActuator{statusErr: busErr}, Options{})

	c := Control{ID: CIDGetStatus}
	err := d.GetCtrl(&c)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if !errors.Is(err, busErr) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestGetCtrl_UnknownID(t *testing.T) {
	d := newDispatcher(t, &fakeActuator{}, Options{})
	c := Control{ID: CIDSetPosition}
	if err := d.GetCtrl(&c); !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestSetCtrl_Position(t *testing.T) {
	act := &fakeActuator{}
	d := newDispatcher(t, act, Options{})

	if err := d.Ioctl(CmdSetCtrl, &Control{ID: CIDSetPosition, Value: 512}); err != nil {
		t.Fatalf("Ioctl: %v", err)
	}
	if act.lastTarget != 512 || act.Position() != 512 {
		t.Errorf("target = %d, position = %d", act.lastTarget, act.Position())
	}
}

func TestSetCtrl_PositionRejected(t *testing.T) {
	for _, v := range []int32{-1, -1000, 70000} {
		act := &fakeActuator{}
		d := newDispatcher(t, act, Options{})

		err := d.SetCtrl(Control{ID: CIDSetPosition, Value: v})
		if !errors.Is(err, ErrRejected) || !errors.Is(err, vcm.ErrOutOfRange) {
			t.Errorf("SetCtrl(%d) err = %v, want rejected out-of-range", v, err)
		}
		if len(act.calls) != 0 {
			t.Errorf("SetCtrl(%d) reached the actuator", v)
		}
	}
}

func TestSetCtrl_PositionPassesOverride(t *testing.T) {
	act := &fakeActuator{}
	ov := staticOverride{FixedEnabled: true, FixedPosition: 77}
	d := newDispatcher(t, act, Options{Overrides: ov})

	if err := d.SetPosition(-5); err != nil {
		t.Fatalf("SetPosition with fixed override: %v", err)
	}
	if !act.lastOv.FixedEnabled || act.lastOv.FixedPosition != 77 {
		t.Errorf("override not forwarded: %+v", act.lastOv)
	}
}

func TestSetCtrl_DeviceRangeErrorRejected(t *testing.T) {
	act := &fakeActuator{setErr: &vcm.RangeError{Target: 2000, Max: 1023}}
	d := newDispatcher(t, act, Options{})

	err := d.SetPosition(2000)
	if !errors.Is(err, ErrRejected) || !errors.Is(err, vcm.ErrOutOfRange) {
		t.Errorf("err = %v", err)
	}
}

func TestSoftLanding_Disabled(t *testing.T) {
	act := &fakeActuator{}
	d := newDispatcher(t, act, Options{})

	if err := d.SetCtrl(Control{ID: CIDSoftLanding}); !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if len(act.calls) != 0 {
		t.Error("disabled soft landing reached the actuator")
	}
}

func TestSoftLanding_Outcomes(t *testing.T) {
	busErr := errors.New("nack")
	cases := []struct {
		name     string
		out      vcm.SoftLandingOutcome
		err      error
		wantSoft bool
		wantHard bool
	}{
		{"landed", vcm.SoftLandingOutcome{Landed: true}, nil, false, false},
		{"stuck", vcm.SoftLandingOutcome{FinalPosition: 0x210}, nil, true, false},
		{"bus", vcm.SoftLandingOutcome{}, &vcm.SoftLandingError{Stage: vcm.LandPreset, Err: busErr}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t, &fakeActuator{landOut: tc.out, landErr: tc.err}, Options{SoftLandingCommand: true})

			err := d.Ioctl(CmdSetCtrl, &Control{ID: CIDSoftLanding})
			if got := errors.Is(err, ErrSoftLandingIncomplete); got != tc.wantSoft {
				t.Errorf("soft = %v, want %v (err %v)", got, tc.wantSoft, err)
			}
			if got := errors.Is(err, ErrRejected); got != tc.wantHard {
				t.Errorf("hard = %v, want %v (err %v)", got, tc.wantHard, err)
			}
			var sf *SoftFailure
			if tc.wantSoft && (!errors.As(err, &sf) || sf.FinalPosition != 0x210) {
				t.Errorf("SoftFailure = %+v", sf)
			}
		})
	}
}

func TestIoctl_UnknownCommand(t *testing.T) {
	d := newDispatcher(t, &fakeActuator{}, Options{})
	if err := d.Ioctl(Cmd(99), &Control{}); !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestInit_UsesCalibrationAndOverride(t *testing.T) {
	act := &fakeActuator{}
	cal := &vcm.Calibration{ControlMode: 2, Prescale: 3, AccTime: 0x10}
	steps := []vcm.InitStep{{Position: 10, DelayMs: 1}}
	d := newDispatcher(t, act, Options{
		Calibration: caldata.Static{Cal: cal},
		Overrides:   staticOverride{InitSteps: steps, InitStepCount: 1},
	})

	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if act.lastCal != cal {
		t.Errorf("calibration = %+v, want %+v", act.lastCal, cal)
	}
	if act.lastOv.InitStepCount != 1 {
		t.Errorf("override = %+v", act.lastOv)
	}
}

type brokenSource struct{}

func (brokenSource) Calibration() (*vcm.Calibration, error) {
	return nil, errors.New("eeprom unreadable")
}

func TestInit_CalibrationErrorFallsBack(t *testing.T) {
	act := &fakeActuator{}
	d := newDispatcher(t, act, Options{Calibration: brokenSource{}})

	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if act.lastCal != nil {
		t.Error("unreadable calibration must fall back to the default path")
	}
}

func TestDispatcher_OnSimDevice(t *testing.T) {
	sim := vcm.NewSim()
	dev, err := vcm.NewDevice(sim, vcm.Config{Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	d := newDispatcher(t, dev, Options{SoftLandingCommand: true})

	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := d.SetCtrl(Control{ID: CIDSetPosition, Value: 1023}); err != nil {
		t.Fatalf("SetCtrl: %v", err)
	}
	if err := d.SetCtrl(Control{ID: CIDSetPosition, Value: 1024}); !errors.Is(err, vcm.ErrOutOfRange) {
		t.Errorf("SetCtrl(1024) err = %v, want out of range", err)
	}
	if dev.Position() != 1023 {
		t.Errorf("position = %d, want 1023", dev.Position())
	}
	if _, err := d.SoftLand(); err != nil {
		t.Fatalf("SoftLand: %v", err)
	}
	c := Control{ID: CIDGetStatus}
	if err := d.GetCtrl(&c); err != nil || c.Value != StatusNotBusy {
		t.Errorf("status = %d, %v", c.Value, err)
	}
}
