package vcm

import "github.com/cjeanneret/lensvcm/internal/debug"

// GetStatus performs a single status register read.
func (d *Device) GetStatus() (BusyStatus, error) {
	reg, err := d.bus.Read8(RegStatus)
	if err != nil {
		return NotBusy, err
	}
	st := ClassifyStatus(reg)
	d.State.LastStatus = st
	return st, nil
}

// WaitUntilNotBusy polls the status register until both busy bits clear or
// BusyMaxPolls reads have been made, and returns the last observed status.
// A failed read counts as not busy so a dead bus cannot stall the caller.
func (d *Device) WaitUntilNotBusy() BusyStatus {
	d.sleep(busySettleDelay)

	st := Busy
	for polls := 0; st == Busy && polls < BusyMaxPolls; polls++ {
		var err error
		st, err = d.GetStatus()
		if err != nil {
			debug.Trace("status read failed, assuming idle: %v", err)
			st = NotBusy
		}
		if st == Busy {
			d.sleep(busyRetryDelay)
		}
	}

	if st == Busy {
		debug.Warn("actuator still busy after %d polls", BusyMaxPolls)
	}
	return st
}
