// Package signal implements the signal modulator: it turns a byte
// buffer into a timed stream of pulse half-periods on a single output
// line, one bit at a time, MSB first. DCC encodes a bit by pulse
// half-period: logical 1 is a short half-period, logical 0 a long one.
//
// The original ran this off an AVR hardware timer in CTC-with-toggle
// mode, reprogramming the compare value from an interrupt handler that
// fired on every edge. There's no such timer here, so the state
// machine is driven by a goroutine that sleeps for each half-period
// instead of waiting on a compare match; the bit-advance logic is the
// same either way.
package signal

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mikey-austin/freedcc/internal/dcc"
)

const (
	// HalfPeriodOne is the pulse half-period encoding a logical 1 bit.
	HalfPeriodOne = 58 * time.Microsecond
	// HalfPeriodZero is the pulse half-period encoding a logical 0 bit.
	HalfPeriodZero = 110 * time.Microsecond

	// MaxBytes is the largest buffer Send will accept.
	MaxBytes = dcc.MaxBytes
)

// Output is the single line the modulator drives high and low.
// Implementations back it with whatever GPIO or timer peripheral is
// actually wired to the track.
type Output interface {
	Set(high bool) error
}

// Modulator transmits byte buffers as DCC pulse trains on an Output.
// The zero value is not usable; construct with New.
type Modulator struct {
	out Output

	mu      sync.Mutex
	bytes   [MaxBytes]byte
	size    int
	curByte int
	curBit  int
}

// New returns a Modulator driving out. It idles on logical 1s (the
// DCC preamble pattern is itself all-ones, so idling is benign) until
// the first call to Send.
func New(out Output) *Modulator {
	return &Modulator{out: out}
}

// Send copies bytes into the modulator's buffer and resets
// transmission to the first bit of the first byte. It rejects buffers
// longer than MaxBytes. Safe to call while Run is active.
func (m *Modulator) Send(bytes []byte) error {
	if len(bytes) > MaxBytes {
		return fmt.Errorf("signal: %d bytes exceeds MaxBytes (%d)", len(bytes), MaxBytes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.bytes[:], bytes)
	m.size = len(bytes)
	m.curByte = 0
	m.curBit = 7
	return nil
}

// Run drives the output line, bit by bit, until ctx is cancelled. It
// pins itself to an OS thread and makes a best-effort attempt to raise
// its scheduling priority, since late pulses desynchronize every
// decoder listening to the line. The priority change is best-effort:
// its error is ignored, neither logged nor treated as fatal.
func (m *Modulator) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -20)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		half := HalfPeriodOne
		if bit, ok := m.nextBit(); ok && !bit {
			half = HalfPeriodZero
		}

		if err := m.out.Set(true); err != nil {
			return err
		}
		if !sleep(ctx, half) {
			return ctx.Err()
		}

		if err := m.out.Set(false); err != nil {
			return err
		}
		if !sleep(ctx, half) {
			return ctx.Err()
		}
	}
}

// nextBit returns the next bit to transmit and advances the internal
// cursor. ok is false when the buffer is empty or exhausted, in which
// case the caller should idle on logical 1.
func (m *Modulator) nextBit() (bit bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size == 0 || m.curByte >= m.size {
		return false, false
	}

	bit = m.bytes[m.curByte]&(1<<uint(m.curBit)) != 0

	switch {
	case m.curBit > 0:
		m.curBit--
	case m.curByte < m.size-1:
		m.curByte++
		m.curBit = 7
	default:
		// Last bit of the last byte consumed; mark exhausted so
		// subsequent calls idle until the next Send.
		m.curByte = m.size
	}

	return bit, true
}

// sleep waits for d or ctx cancellation, returning false in the
// latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
