package dcc

// Special packets are literal 5-byte patterns that don't follow the
// general baseline field layout (aside from sharing the broadcast
// address and packet-end bit). They're built directly rather than
// through the Set* field mutators.

// Reset overwrites p with the special reset packet, addressed to
// every decoder on the layout.
func (p *Packet) Reset() {
	copy(p.Bytes, []byte{0xFF, 0xF0, 0x00, 0x00, 0x01})
}

// Idle overwrites p with the special idle packet.
func (p *Packet) Idle() {
	copy(p.Bytes, []byte{0xFF, 0xF7, 0xF8, 0x01, 0xFF})
}

// BroadcastStop overwrites p with the broadcast stop packet: stop, but
// leave power applied to motors.
func (p *Packet) BroadcastStop() {
	copy(p.Bytes, []byte{0xFF, 0xF0, 0x01, 0xC0, 0xE1})
}

// EmergencyStop overwrites p with the emergency stop packet: cut power
// to motors immediately.
func (p *Packet) EmergencyStop() {
	copy(p.Bytes, []byte{0xFF, 0xF0, 0x01, 0xC4, 0xE3})
}

// IsBroadcastStop reports whether p is one of the two broadcast-stop
// literals (ordinary or emergency).
func (p *Packet) IsBroadcastStop() bool {
	if len(p.Bytes) != BaselineLen {
		return false
	}
	b := p.Bytes
	return b[0] == 0xFF && b[1] == 0xF0 && b[2] == 0x01 &&
		(b[3] == 0xC0 || b[3] == 0xC4) &&
		(b[4] == 0xE1 || b[4] == 0xE3)
}

// NewIdle is a convenience constructor for a baseline packet already
// populated as the idle packet.
func NewIdle() *Packet {
	p := NewBaseline()
	p.Idle()
	return p
}
