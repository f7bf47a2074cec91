//go:build linux

package serialport

// OpenPTY finds an available pseudo-terminal and returns a master and
// slave Port. Used by the station binary to exercise the console
// DSL against a local pty when no real serial hardware is attached.
// If termp is non-nil the slave is configured with it (typically raw
// mode at the console's baud rate); if winp is non-nil the slave's
// reported window size is set.
func OpenPTY(termp *Termios, winp *Winsize) (*Port, *Port, error) {
	master, err := Open("/dev/ptmx", nil)
	if err != nil {
		return nil, nil, err
	}
	if err := master.SetLockPT(false); err != nil {
		master.Close()
		return nil, nil, err
	}
	slave, err := master.GetPTPeer(0)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	if termp != nil {
		if err := slave.SetAttr(TCSANOW, termp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	if winp != nil {
		if err := slave.SetWinSize(winp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}

	return master, slave, nil
}
