package dcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBaseline(address byte, step int, dir Direction) *Packet {
	p := NewBaseline()
	p.SetPreamble()
	p.SetAddress(address)
	p.SetSpeedDirectionPreamble()
	p.SetDirection(dir)
	p.SetSpeed(step)
	p.SetChecksum()
	p.SetEnd()
	return p
}

func TestRoundTripAllAddressesSpeedsDirections(t *testing.T) {
	for _, dir := range []Direction{Forward, Reverse} {
		for step := 0; step < MaxSpeedSteps; step++ {
			for addr := 0; addr < AddressMax; addr++ {
				p := buildBaseline(byte(addr), step, dir)

				assert.Equal(t, byte(addr), p.Address())
				assert.Equal(t, step, p.SpeedStep())
				assert.Equal(t, dir, p.Direction())
				assert.Equal(t, p.Address()^byte(p.SpeedAndDirection()),
					checksumByte(p))
				assert.Equal(t, byte(1), p.Bytes[4]&0x01, "packet-end bit must be set")
			}
		}
	}
}

// checksumByte reconstructs the checksum byte from its split-across-
// bytes on-wire encoding.
func checksumByte(p *Packet) byte {
	return ((p.Bytes[3] & 0x01) << 7) | (p.Bytes[4] >> 1)
}

func TestSetAddressWrapsModulo128(t *testing.T) {
	p := NewBaseline()
	p.SetAddress(128)
	assert.Equal(t, byte(0), p.Address())

	p2 := NewBaseline()
	p2.SetAddress(200)
	assert.Equal(t, byte(200%AddressMax), p2.Address())
}

func TestSetSpeedWrapsModulo29(t *testing.T) {
	p := buildBaseline(3, 29, Forward)
	assert.Equal(t, 0, p.SpeedStep())
}

func TestCompareSpeed(t *testing.T) {
	slow := buildBaseline(1, 3, Forward)
	fast := buildBaseline(1, 20, Reverse)
	same := buildBaseline(2, 3, Reverse)

	assert.Equal(t, -1, CompareSpeed(slow, fast))
	assert.Equal(t, 1, CompareSpeed(fast, slow))
	assert.Equal(t, 0, CompareSpeed(slow, same))
}

func TestSpecialPackets(t *testing.T) {
	idle := NewBaseline()
	idle.Idle()
	assert.False(t, idle.IsBroadcastStop())
	assert.Equal(t, []byte{0xFF, 0xF7, 0xF8, 0x01, 0xFF}, idle.Bytes)

	stop := NewBaseline()
	stop.BroadcastStop()
	assert.True(t, stop.IsBroadcastStop())
	assert.Equal(t, []byte{0xFF, 0xF0, 0x01, 0xC0, 0xE1}, stop.Bytes)

	estop := NewBaseline()
	estop.EmergencyStop()
	assert.True(t, estop.IsBroadcastStop())

	reset := NewBaseline()
	reset.Reset()
	assert.False(t, reset.IsBroadcastStop())
	assert.Equal(t, []byte{0xFF, 0xF0, 0x00, 0x00, 0x01}, reset.Bytes)
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	_, err = New(-1)
	require.Error(t, err)

	_, err = New(MaxBytes + 1)
	require.Error(t, err)

	p, err := New(MaxBytes)
	require.NoError(t, err)
	assert.Equal(t, MaxBytes, p.Size())
}

func TestEndToEndForwardAddr3Speed8(t *testing.T) {
	p := buildBaseline(3, 8, Forward)
	assert.Equal(t, byte(3), p.Address())
	assert.Equal(t, 8, p.SpeedStep())
	assert.Equal(t, Forward, p.Direction())
	assert.Equal(t, byte(1), p.Bytes[4]&0x01)
	assert.Equal(t, p.Address()^byte(p.SpeedAndDirection()), checksumByte(p))
}

func TestHexAndBinaryStringLengths(t *testing.T) {
	p := NewIdle()
	assert.Len(t, p.HexString(), BaselineLen*2+(BaselineLen-1))
	assert.Len(t, p.BinaryString(), BaselineLen*8+(BaselineLen-1))
}
