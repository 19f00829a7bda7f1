package vcm

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewDevice_NilBus(t *testing.T) {
	if _, err := NewDevice(nil, Config{}); !errors.Is(err, ErrNoBus) {
		t.Errorf("NewDevice(nil) err = %v, want ErrNoBus", err)
	}
}

func TestNewDevice_Defaults(t *testing.T) {
	d, err := NewDevice(newRecordingBus(), Config{})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if d.State.MaxPosition != 1023 {
		t.Errorf("MaxPosition = %d, want 1023", d.State.MaxPosition)
	}
	if d.State.PosSizeBit != 10 {
		t.Errorf("PosSizeBit = %d, want 10", d.State.PosSizeBit)
	}
	if d.SoftLandOnExit() {
		t.Error("SoftLandOnExit should follow config (false)")
	}
}

func TestInitialize_DefaultSequence(t *testing.T) {
	bus := newRecordingBus()
	d := newTestDevice(bus)

	if err := d.Initialize(nil, Override{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	want := []busOp{
		w8(RegControl, 0x01),
		w8(RegControl, 0x00),
		sleepOp(5 * time.Millisecond),
		w8(RegControl, 0x02),
		w8(RegAccMode, 0x01),
		w8(RegAccTime, 0x36),
		w16(RegPosHigh, 0x00, 100),
		sleepOp(20 * time.Millisecond),
		w16(RegPosHigh, 0x00, 180),
		sleepOp(10 * time.Millisecond),
	}
	if diff := cmp.Diff(want, bus.ops); diff != "" {
		t.Errorf("unexpected bus traffic (-want +got):\n%s", diff)
	}
	if d.Position() != 180 {
		t.Errorf("position = %d, want 180", d.Position())
	}
	if d.State.Calibration != nil {
		t.Error("calibration should stay nil on the default path")
	}
}

func TestInitialize_Calibrated(t *testing.T) {
	bus := newRecordingBus()
	d := newTestDevice(bus)
	cal := &Calibration{ControlMode: 0x2, Prescale: 0x3, AccTime: 0x10}

	if err := d.Initialize(cal, Override{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	writes := bus.writeOps()
	want := []busOp{
		w8(RegControl, 0x01),
		w8(RegControl, 0x00),
		w8(RegControl, 0x02),
		w8(RegAccMode, 0x43),
		w8(RegAccTime, 0x10),
	}
	if diff := cmp.Diff(want, writes[:5]); diff != "" {
		t.Errorf("unexpected register programming (-want +got):\n%s", diff)
	}
	if d.State.Calibration != cal {
		t.Error("calibration not recorded in state")
	}
}

func TestCalibration_AccModeKeepsLiteralPacking(t *testing.T) {
	cases := []struct {
		name string
		cal  Calibration
		want byte
	}{
		{"documented", Calibration{ControlMode: 0x5, Prescale: 0x1}, 0xA1},
		{"zero", Calibration{}, 0x00},
		{"mode_overflows_byte", Calibration{ControlMode: 0x0F, Prescale: 0x01}, 0xE1},
		{"prescale_bleeds_into_mode", Calibration{ControlMode: 0x1, Prescale: 0x25}, 0x25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cal.AccMode(); got != tc.want {
				t.Errorf("AccMode() = 0x%02X, want 0x%02X", got, tc.want)
			}
		})
	}
}

func TestInitialize_BusFailureTagsStep(t *testing.T) {
	cases := []struct {
		failAt int
		want   InitStage
	}{
		{1, InitPowerDown},
		{2, InitPowerUp},
		{3, InitRingMode},
		{4, InitAccMode},
		{5, InitAccTime},
		{6, InitPosition},
	}
	for _, tc := range cases {
		t.Run(tc.want.String(), func(t *testing.T) {
			bus := newRecordingBus()
			bus.failAt = tc.failAt
			bus.failErr = errBusDown
			d := newTestDevice(bus)

			err := d.Initialize(nil, Override{})
			var ie *InitError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want *InitError", err)
			}
			if ie.Step != tc.want {
				t.Errorf("step = %v, want %v", ie.Step, tc.want)
			}
			if !errors.Is(err, errBusDown) {
				t.Errorf("underlying bus error lost: %v", err)
			}
			if got := len(bus.writeOps()); got != tc.failAt-1 {
				t.Errorf("writes after abort = %d, want %d", got, tc.failAt-1)
			}
		})
	}
}

func TestInitialize_NoAccessBeforeSettle(t *testing.T) {
	bus := newRecordingBus()
	d := newTestDevice(bus)
	if err := d.Initialize(nil, Override{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// The settle delay must sit between PD clear and the next register write.
	if bus.ops[2].Op != "sleep" || bus.ops[2].Delay != PowerOnDelay {
		t.Errorf("op[2] = %+v, want %v settle delay", bus.ops[2], PowerOnDelay)
	}
}

func TestProbe(t *testing.T) {
	bus := newRecordingBus()
	bus.reads[RegICInfo] = []byte{0xE1}
	bus.reads[RegICVersion] = []byte{0x03}
	d := newTestDevice(bus)

	id, err := d.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	want := ICInfo{Manufacturer: 0xE, Model: 0x1, Revision: 3}
	if diff := cmp.Diff(want, id); diff != "" {
		t.Errorf("ICInfo (-want +got):\n%s", diff)
	}
}

func TestProbe_ReadError(t *testing.T) {
	bus := newRecordingBus()
	bus.readErr[RegICInfo] = errBusDown
	d := newTestDevice(bus)

	if _, err := d.Probe(); !errors.Is(err, errBusDown) {
		t.Errorf("Probe err = %v, want bus error", err)
	}
}
