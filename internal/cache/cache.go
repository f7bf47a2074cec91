// Package cache implements the refresh cache: a bounded mapping from
// loco address to the last packet seen for that address, plus a
// round-robin ordering used to pick the next packet to refresh on the
// track. DCC decoders are stateless receivers, so every tracked
// locomotive must see its last command again on a cycle, not just once.
package cache

import "github.com/mikey-austin/freedcc/internal/dcc"

// Capacity is the default maximum number of distinct addresses the
// cache tracks at once, matching the original's fixed ring size.
const Capacity = 20

// Cache holds the last packet per loco address and a FIFO of
// currently-tracked addresses used for round-robin refresh.
//
// The original C implementation paired a ring buffer of addresses
// with a hand-rolled open-addressing hash table (linear probing,
// capacity equal to the ring's) purely because C lacks generics. Go
// doesn't have that constraint, so this is a plain map plus a slice
// used as a FIFO; the "capacity collision is unreachable" invariant
// from the original falls out for free since address lookups don't
// probe at all.
type Cache struct {
	capacity  int
	packets   map[byte]*dcc.Packet
	addresses []byte
}

// New returns an empty cache tracking up to capacity distinct
// addresses at once. A non-positive capacity falls back to Capacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Cache{
		capacity:  capacity,
		packets:   make(map[byte]*dcc.Packet, capacity),
		addresses: make([]byte, 0, capacity),
	}
}

// Update records packet as the latest for its address. If the address
// wasn't already tracked it's appended to the round-robin order; if
// the cache is already at capacity, the address at the head of that
// order (the one Next would return next) is evicted first to make
// room. Updating an already-tracked address does not move it. Ownership of packet passes to the
// cache; any previous packet at the same address is dropped.
func (c *Cache) Update(packet *dcc.Packet) {
	address := packet.Address()
	if _, tracked := c.packets[address]; !tracked {
		if len(c.addresses) >= c.capacity {
			evict := c.addresses[0]
			c.addresses = c.addresses[1:]
			delete(c.packets, evict)
		}
		c.addresses = append(c.addresses, address)
	}
	c.packets[address] = packet
}

// Next pops the head address off the round-robin order, looks up its
// packet, and pushes the address back onto the tail so every tracked
// locomotive is refreshed once per full cycle. Returns nil if the
// cache is empty. The returned packet remains owned by the cache.
func (c *Cache) Next() *dcc.Packet {
	if len(c.addresses) == 0 {
		return nil
	}

	address := c.addresses[0]
	c.addresses = append(c.addresses[1:], address)

	return c.packets[address]
}

// Get returns the packet tracked for address, or nil if none is
// cached.
func (c *Cache) Get(address byte) *dcc.Packet {
	return c.packets[address]
}

// Clear discards every tracked packet and resets the round-robin
// order.
func (c *Cache) Clear() {
	c.packets = make(map[byte]*dcc.Packet, c.capacity)
	c.addresses = c.addresses[:0]
}

// Len reports the number of distinct addresses currently tracked.
func (c *Cache) Len() int {
	return len(c.addresses)
}
