// Package sysinfo tracks the handful of running counters a command
// station operator wants visible from the console: packets and bytes
// transmitted, parse outcomes, system commands processed and inbound
// packets dropped for queue overflow. It also models the system
// commands themselves (`show status`, `help`, `cache clear`,
// `cache show`) as a small tagged type, replacing the original's
// function-pointer dispatch table.
package sysinfo

import "sync/atomic"

// Counters holds the running totals. The zero value is ready to use.
type Counters struct {
	txPackets  int64
	txBytes    int64
	parseOK    int64
	parseErr   int64
	sysCmds    int64
	queueDrops int64
}

// RecordTx accounts for a packet of size bytes handed to the modulator.
func (c *Counters) RecordTx(size int) {
	atomic.AddInt64(&c.txPackets, 1)
	atomic.AddInt64(&c.txBytes, int64(size))
}

// RecordParseOK accounts for one successfully parsed console line.
func (c *Counters) RecordParseOK() {
	atomic.AddInt64(&c.parseOK, 1)
}

// RecordParseError accounts for one console line that failed to parse.
func (c *Counters) RecordParseError() {
	atomic.AddInt64(&c.parseErr, 1)
}

// RecordSysCmd accounts for one system command processed.
func (c *Counters) RecordSysCmd() {
	atomic.AddInt64(&c.sysCmds, 1)
}

// RecordQueueDrop accounts for one inbound packet silently dropped
// because the scheduler's queue was full.
func (c *Counters) RecordQueueDrop() {
	atomic.AddInt64(&c.queueDrops, 1)
}

// Snapshot is a point-in-time copy of every counter, safe to read
// without further synchronization.
type Snapshot struct {
	TxPackets  int64
	TxBytes    int64
	ParseOK    int64
	ParseErr   int64
	SysCmds    int64
	QueueDrops int64
}

// Snapshot returns the current value of every counter.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TxPackets:  atomic.LoadInt64(&c.txPackets),
		TxBytes:    atomic.LoadInt64(&c.txBytes),
		ParseOK:    atomic.LoadInt64(&c.parseOK),
		ParseErr:   atomic.LoadInt64(&c.parseErr),
		SysCmds:    atomic.LoadInt64(&c.sysCmds),
		QueueDrops: atomic.LoadInt64(&c.queueDrops),
	}
}

// ParseTotal is the number of console lines seen, successful or not.
func (s Snapshot) ParseTotal() int64 {
	return s.ParseOK + s.ParseErr
}

// CommandType distinguishes the system commands the DSL can produce.
type CommandType int

const (
	// CmdStatus renders the current Snapshot.
	CmdStatus CommandType = iota
	// CmdHelp renders the builtin grammar synopsis.
	CmdHelp
	// CmdCacheClear empties the refresh cache.
	CmdCacheClear
	// CmdCacheShow renders the cached packet for one address.
	CmdCacheShow
)

// Command is a system command parsed from the console, paired with
// whatever argument it needs (only CmdCacheShow has one).
type Command struct {
	Type    CommandType
	Address byte
}
