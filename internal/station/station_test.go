package station

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey-austin/freedcc/internal/cache"
	"github.com/mikey-austin/freedcc/internal/dcc"
	"github.com/mikey-austin/freedcc/internal/sysinfo"
)

type fakeSender struct {
	added []*dcc.Packet
}

func (f *fakeSender) Add(packet *dcc.Packet) {
	f.added = append(f.added, packet)
}

// harness wires a Station to one end of an in-memory pipe, leaving the
// other end for the test to act as the console's human operator.
type harness struct {
	st      *Station
	sender  *fakeSender
	cache   *cache.Cache
	counter *sysinfo.Counters
	client  net.Conn
	reader  *bufio.Reader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	sender := &fakeSender{}
	c := cache.New(cache.Capacity)
	var counters sysinfo.Counters
	st := New(serverConn, sender, c, &counters, nil)

	return &harness{
		st:      st,
		sender:  sender,
		cache:   c,
		counter: &counters,
		client:  clientConn,
		reader:  bufio.NewReader(clientConn),
	}
}

func (h *harness) send(t *testing.T, line string) {
	t.Helper()
	_, err := h.client.Write([]byte(line))
	require.NoError(t, err)
}

// readUntil reads from the client side until it has seen needle or
// the deadline passes.
func (h *harness) readUntil(t *testing.T, needle string) string {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got []byte
	buf := make([]byte, 256)
	for {
		n, err := h.reader.Read(buf)
		if n > 0 {
			got = append(got, buf[:n]...)
			if containsStr(string(got), needle) {
				return string(got)
			}
		}
		if err != nil {
			t.Fatalf("readUntil(%q): %v, got so far: %q", needle, err, got)
		}
	}
}

func containsStr(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestServeOneForwardsPacketAndPrintsOk(t *testing.T) {
	h := newHarness(t)
	go h.st.ServeOne()

	h.readUntil(t, "freedcc> ")
	h.send(t, "forward addr 3 speed 5\n")

	out := h.readUntil(t, "freedcc> ")
	assert.Contains(t, out, "ok\n\n")
	require.Len(t, h.sender.added, 1)
	assert.Equal(t, byte(3), h.sender.added[0].Address())
}

func TestServeOneReportsParseError(t *testing.T) {
	h := newHarness(t)
	go h.st.ServeOne()

	h.readUntil(t, "freedcc> ")
	h.send(t, "bogus command\n")

	out := h.readUntil(t, "freedcc> ")
	assert.Contains(t, out, "parse error\n\n")
	assert.Equal(t, int64(1), h.counter.Snapshot().ParseErr)
}

func TestServeOneShowStatusRendersCounters(t *testing.T) {
	h := newHarness(t)
	go h.st.ServeOne()

	h.readUntil(t, "freedcc> ")
	h.send(t, "show status\n")

	out := h.readUntil(t, "freedcc> ")
	assert.Contains(t, out, "tx packets:")
	assert.Equal(t, int64(1), h.counter.Snapshot().SysCmds)
}

func TestServeOneCacheShowReportsUncached(t *testing.T) {
	h := newHarness(t)
	go h.st.ServeOne()

	h.readUntil(t, "freedcc> ")
	h.send(t, "cache show 7\n")

	out := h.readUntil(t, "freedcc> ")
	assert.Contains(t, out, "no cached packet for loco with address 7")
}

func TestServeOneCacheShowReportsCachedPacket(t *testing.T) {
	h := newHarness(t)
	p := dcc.NewBaseline()
	p.SetPreamble()
	p.SetAddress(7)
	p.SetSpeedDirectionPreamble()
	p.SetDirection(dcc.Forward)
	p.SetSpeed(4)
	p.SetChecksum()
	p.SetEnd()
	h.cache.Update(p)

	go h.st.ServeOne()
	h.readUntil(t, "freedcc> ")
	h.send(t, "cache show 7\n")

	out := h.readUntil(t, "freedcc> ")
	assert.Contains(t, out, p.HexString())
	assert.Contains(t, out, p.BinaryString())
	assert.Contains(t, out, "speed:\t4")
	assert.Contains(t, out, "direction:\tforward")
}

func TestServeReturnsEOFWhenConsoleDisconnects(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() { done <- h.st.Serve() }()

	h.readUntil(t, "freedcc> ")
	h.client.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after console disconnected")
	}
}
