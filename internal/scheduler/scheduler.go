// Package scheduler implements the tick-driven transmit decision: on
// every tick it either forwards one freshly-queued packet to the
// modulator, or picks a refresh source (a held broadcast-stop packet,
// the next cache entry, or the idle packet) when there's nothing new
// to send.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mikey-austin/freedcc/internal/cache"
	"github.com/mikey-austin/freedcc/internal/dcc"
	"github.com/mikey-austin/freedcc/internal/sysinfo"
)

const (
	// QueueCapacity is the default size of the bounded inbound queue.
	QueueCapacity = 20

	// TickPeriod is the default interval between transmit decisions,
	// matching the refresh rate the modulator needs.
	TickPeriod = 8 * time.Millisecond
)

// Sender is the destination for a packet's raw bytes — normally a
// *signal.Modulator, but kept as an interface so the scheduler can be
// tested without a real timed output.
type Sender interface {
	Send(bytes []byte) error
}

// Scheduler owns the inbound queue, the held broadcast-stop packet
// and the refresh cache, and decides what goes out on each tick.
type Scheduler struct {
	out        Sender
	cache      *cache.Cache
	counters   *sysinfo.Counters
	log        *logrus.Logger
	idle       *dcc.Packet
	tickPeriod time.Duration

	queue chan *dcc.Packet

	mu         sync.Mutex
	stopPacket *dcc.Packet
}

// New returns a Scheduler sending through out, backed by cache c and
// accounting into counters, ticking every tickPeriod and buffering up
// to queueCapacity inbound packets. A nil log falls back to the
// package logger; a non-positive tickPeriod or queueCapacity falls
// back to TickPeriod/QueueCapacity.
func New(out Sender, c *cache.Cache, counters *sysinfo.Counters, log *logrus.Logger, tickPeriod time.Duration, queueCapacity int) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if tickPeriod <= 0 {
		tickPeriod = TickPeriod
	}
	if queueCapacity <= 0 {
		queueCapacity = QueueCapacity
	}
	return &Scheduler{
		out:        out,
		cache:      c,
		counters:   counters,
		log:        log,
		idle:       dcc.NewIdle(),
		tickPeriod: tickPeriod,
		queue:      make(chan *dcc.Packet, queueCapacity),
	}
}

// Add enqueues packet for transmission on the next tick. Safe to call
// concurrently with Run. If the queue is already full, packet is
// silently dropped — the scheduler never applies backpressure to the
// caller — but the drop is still observable via counters and a log
// line.
func (s *Scheduler) Add(packet *dcc.Packet) {
	select {
	case s.queue <- packet:
	default:
		if s.counters != nil {
			s.counters.RecordQueueDrop()
		}
		s.log.Warn("scheduler: inbound queue full, dropping packet")
	}
}

// Run ticks every tickPeriod until ctx is cancelled, performing one
// transmit decision per tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick performs one scheduler decision: a freshly-queued packet takes
// priority over any refresh source.
func (s *Scheduler) tick() {
	select {
	case packet := <-s.queue:
		s.dispatchNew(packet)
	default:
		s.dispatchRefresh()
	}
}

// dispatchNew transmits a just-popped inbound packet, then updates the
// held broadcast-stop state and refresh cache per spec: any new
// command supersedes a previously-held stop; a broadcast-stop packet
// is held and clears the cache instead of being cached itself.
func (s *Scheduler) dispatchNew(packet *dcc.Packet) {
	s.send(packet)

	s.mu.Lock()
	s.stopPacket = nil
	s.mu.Unlock()

	if packet.IsBroadcastStop() {
		s.mu.Lock()
		s.stopPacket = packet
		s.mu.Unlock()
		s.cache.Clear()
	} else {
		s.cache.Update(packet)
	}
}

// dispatchRefresh picks a refresh source in priority order: held
// broadcast-stop, next cache entry, idle packet.
func (s *Scheduler) dispatchRefresh() {
	s.mu.Lock()
	packet := s.stopPacket
	s.mu.Unlock()

	if packet == nil {
		packet = s.cache.Next()
	}
	if packet == nil {
		packet = s.idle
	}
	s.send(packet)
}

func (s *Scheduler) send(packet *dcc.Packet) {
	if err := s.out.Send(packet.Bytes); err != nil {
		s.log.WithError(err).Warn("scheduler: modulator send failed")
		return
	}
	if s.counters != nil {
		s.counters.RecordTx(packet.Size())
	}
}
