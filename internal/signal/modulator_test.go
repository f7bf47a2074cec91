package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	mu     sync.Mutex
	levels []bool
}

func (f *fakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, high)
	return nil
}

func (f *fakeOutput) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.levels))
	copy(out, f.levels)
	return out
}

func TestSendRejectsOversizedBuffer(t *testing.T) {
	m := New(&fakeOutput{})
	err := m.Send(make([]byte, MaxBytes+1))
	require.Error(t, err)

	err = m.Send(make([]byte, MaxBytes))
	require.NoError(t, err)
}

func TestNextBitAdvancesMSBFirstAcrossBytes(t *testing.T) {
	m := New(&fakeOutput{})
	require.NoError(t, m.Send([]byte{0x80, 0x01}))

	var got []bool
	for i := 0; i < 16; i++ {
		bit, ok := m.nextBit()
		require.True(t, ok, "bit %d should still be part of the buffer", i)
		got = append(got, bit)
	}

	want := []bool{
		true, false, false, false, false, false, false, false,
		false, false, false, false, false, false, false, true,
	}
	assert.Equal(t, want, got)

	_, ok := m.nextBit()
	assert.False(t, ok, "buffer should be exhausted after its last bit")
}

func TestNextBitIdlesOnEmptyBuffer(t *testing.T) {
	m := New(&fakeOutput{})
	_, ok := m.nextBit()
	assert.False(t, ok)
}

func TestSendResetsCursorForNewTransmission(t *testing.T) {
	m := New(&fakeOutput{})
	require.NoError(t, m.Send([]byte{0xFF}))

	// Consume a couple of bits, then start a fresh send; the new
	// buffer must transmit from its own first bit, not wherever the
	// old cursor was.
	m.nextBit()
	m.nextBit()

	require.NoError(t, m.Send([]byte{0x00}))
	bit, ok := m.nextBit()
	require.True(t, ok)
	assert.False(t, bit)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	out := &fakeOutput{}
	m := New(out)
	require.NoError(t, m.Send([]byte{0x80}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	levels := out.snapshot()
	require.NotEmpty(t, levels, "Run should have driven the output at least once")
	assert.True(t, levels[0], "first transition should raise the line")
}
