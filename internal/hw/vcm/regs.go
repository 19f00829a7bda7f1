package vcm

import "time"

// FP5529 register map.
const (
	RegICInfo     byte = 0x00 // R,   [7:4] manufacturer id, [3:0] model
	RegICVersion  byte = 0x01 // R,   [3:0] design round
	RegControl    byte = 0x02 // R/W, [1] ring mode, [0] power down
	RegPosHigh    byte = 0x03 // R/W, [1:0] position[9:8]
	RegPosLow     byte = 0x04 // R/W, [7:0] position[7:0]
	RegStatus     byte = 0x05 // R,   [1] eFlash busy, [0] VCM busy
	RegAccMode    byte = 0x06 // R/W, [7:5] acceleration mode, [2:0] prescale
	RegAccTime    byte = 0x07 // R/W, [5:0] acceleration time
	RegPreset     byte = 0x0A // R/W, landing current
	RegLandEnable byte = 0x0B // W,   [0] soft landing control
	RegLandStep   byte = 0x0C // R/W, landing step delay
	RegMPK        byte = 0x10 // R/W, [0] memory protection key
	RegDecayRatio byte = 0x11 // R/W, [3:0] vibration decay ratio
)

// Register bits and fixed values.
const (
	ControlPowerDown byte = 1 << 0
	ControlRing      byte = 1 << 1

	StatusVCMBusy   byte = 1 << 0
	StatusFlashBusy byte = 1 << 1
	statusBusyMask       = StatusVCMBusy | StatusFlashBusy

	posHighMask byte = 0x03

	// DefaultPrescale selects ACCTx1 with direct mode when no calibration exists.
	DefaultPrescale byte = 0x01
	// DefaultAccTime is (6.3ms + 0x36*0.1ms) * scale.
	DefaultAccTime byte = 0x36

	landingAccMode byte = 0x05<<5 | 0x01 // ACC mode 101, clock divide x1
	landingPreset  byte = 0xFF
	landingEnable  byte = 0x01
)

// Device capability defaults for the 10-bit FP5529.
const (
	MaxPosition10Bit uint16 = 1023
	PosSizeBit10     uint8  = 10
)

// Hardware timing contract.
const (
	PowerOnDelay     = 5 * time.Millisecond
	busySettleDelay  = 5 * time.Millisecond
	busyRetryDelay   = 10 * time.Millisecond
	BusyMaxPolls     = 15
	firstInitDelayMs = 20
	lastInitDelayMs  = 10
)

// Fallback settle sequence used when no valid init-position list is supplied.
const (
	DefaultFirstPosition uint16 = 100
	DefaultLastPosition  uint16 = 180
)

func defaultInitSteps() []InitStep {
	return []InitStep{
		{Position: int(DefaultFirstPosition), DelayMs: firstInitDelayMs},
		{Position: int(DefaultLastPosition), DelayMs: lastInitDelayMs},
	}
}
