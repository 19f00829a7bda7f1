package vcm

import (
	"errors"
	"time"
)

// busOp is one recorded bus transaction or delay.
type busOp struct {
	Op    string // "write8", "write16", "read8", "sleep"
	Reg   byte
	Vals  []byte
	Delay time.Duration
}

// recordingBus records register traffic and sleeps for verification.
// Reads are scripted per register; an exhausted script reads 0.
type recordingBus struct {
	ops     []busOp
	reads   map[byte][]byte
	readErr map[byte]error
	writes  int
	failAt  int // fail the n-th write (1-based), 0 = never
	failErr error
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		reads:   make(map[byte][]byte),
		readErr: make(map[byte]error),
	}
}

var errBusDown = errors.New("nack")

func (b *recordingBus) nextWriteFails() bool {
	b.writes++
	return b.failAt > 0 && b.writes == b.failAt
}

func (b *recordingBus) Write8(reg, val byte) error {
	if b.nextWriteFails() {
		return b.failErr
	}
	b.ops = append(b.ops, busOp{Op: "write8", Reg: reg, Vals: []byte{val}})
	return nil
}

func (b *recordingBus) Write16(reg, high, low byte) error {
	if b.nextWriteFails() {
		return b.failErr
	}
	b.ops = append(b.ops, busOp{Op: "write16", Reg: reg, Vals: []byte{high, low}})
	return nil
}

func (b *recordingBus) Read8(reg byte) (byte, error) {
	if err := b.readErr[reg]; err != nil {
		return 0, err
	}
	var v byte
	if q := b.reads[reg]; len(q) > 0 {
		v = q[0]
		b.reads[reg] = q[1:]
	}
	b.ops = append(b.ops, busOp{Op: "read8", Reg: reg, Vals: []byte{v}})
	return v, nil
}

func (b *recordingBus) sleep(d time.Duration) {
	b.ops = append(b.ops, busOp{Op: "sleep", Delay: d})
}

// writeOps filters out reads and sleeps.
func (b *recordingBus) writeOps() []busOp {
	var result []busOp
	for _, op := range b.ops {
		if op.Op == "write8" || op.Op == "write16" {
			result = append(result, op)
		}
	}
	return result
}

func (b *recordingBus) count(op string, reg byte) int {
	n := 0
	for _, o := range b.ops {
		if o.Op == op && o.Reg == reg {
			n++
		}
	}
	return n
}

func (b *recordingBus) sleeps() []time.Duration {
	var result []time.Duration
	for _, op := range b.ops {
		if op.Op == "sleep" {
			result = append(result, op.Delay)
		}
	}
	return result
}

func newTestDevice(bus *recordingBus) *Device {
	d, err := NewDevice(bus, Config{Sleep: bus.sleep, SoftLandOnExit: true})
	if err != nil {
		panic(err)
	}
	return d
}

func w8(reg, val byte) busOp {
	return busOp{Op: "write8", Reg: reg, Vals: []byte{val}}
}

func w16(reg, high, low byte) busOp {
	return busOp{Op: "write16", Reg: reg, Vals: []byte{high, low}}
}

func sleepOp(d time.Duration) busOp {
	return busOp{Op: "sleep", Delay: d}
}
