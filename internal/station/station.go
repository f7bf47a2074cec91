// Package station implements the serial console: it turns the byte
// stream from a serialport.Port into parsed DSL commands, forwards
// locomotive packets to the scheduler, answers system commands
// directly, and prints the "ok"/"parse error" responses and prompt
// the console's human operator expects.
package station

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mikey-austin/freedcc/internal/cache"
	"github.com/mikey-austin/freedcc/internal/dcc"
	"github.com/mikey-austin/freedcc/internal/dsl"
	"github.com/mikey-austin/freedcc/internal/sysinfo"
)

// eofTrackingReader wraps a *bufio.Reader and remembers whether it
// has ever hit end of stream. The DSL lexer treats EOF as just
// another way to end a token (an empty command), so the station
// needs its own signal to tell "the console disconnected" apart from
// "the operator sent a blank line".
type eofTrackingReader struct {
	*bufio.Reader
	eof bool
}

func (r *eofTrackingReader) ReadByte() (byte, error) {
	b, err := r.Reader.ReadByte()
	if err == io.EOF {
		r.eof = true
	}
	return b, err
}

// prompt is printed after every line processed, CR-prefixed so it
// overwrites whatever echo the terminal produced rather than
// scrolling the screen.
const prompt = "\rfreedcc> "

const helpText = `commands:
  raw <hex>             send a verbatim packet
  forward addr <a> speed <s>   (or: speed <s> addr <a>)
  reverse addr <a> speed <s>   (or: speed <s> addr <a>)
  stop addr <a>         per-locomotive stop
  stop all              emergency stop (cuts power)
  stop                  broadcast stop (power stays on)
  show status           counters
  cache show <a>        show the cached packet for address a
  cache clear           clear the refresh cache
  help                  this text
`

// Sender is the destination for locomotive and raw packets — the
// scheduler, in production.
type Sender interface {
	Add(packet *dcc.Packet)
}

// Station wires one console connection's line protocol together: a
// byte source/sink, the DSL parser reading it, the scheduler inbound
// packets are pushed to, the cache status commands read from, and the
// counters status commands report.
type Station struct {
	rw       io.ReadWriter
	reader   *eofTrackingReader
	parser   *dsl.Parser
	out      Sender
	cache    *cache.Cache
	counters *sysinfo.Counters
	log      *logrus.Logger
}

// New returns a Station reading and writing through rw. A nil log
// falls back to the package logger.
func New(rw io.ReadWriter, out Sender, c *cache.Cache, counters *sysinfo.Counters, log *logrus.Logger) *Station {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reader := &eofTrackingReader{Reader: bufio.NewReader(rw)}
	st := &Station{
		rw:       rw,
		reader:   reader,
		out:      out,
		cache:    c,
		counters: counters,
		log:      log,
	}
	st.parser = dsl.New(reader, st.flushLine)
	return st
}

// flushLine discards whatever remains of the current input line,
// so a parse error part-way through a command doesn't leave a
// dangling fragment to confuse the next one.
func (st *Station) flushLine() {
	for {
		b, err := st.reader.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

// ServeOne reads and handles exactly one line of console input:
// parses it, dispatches the result, writes the "ok"/"parse error"
// response and the prompt. Returns io.EOF once the underlying
// connection reaches end of stream (the peer hung up); any other read
// error is counted and answered as a parse error, and ServeOne
// returns nil.
func (st *Station) ServeOne() error {
	result, err := st.parser.Parse()
	if err != nil {
		if st.reader.eof {
			return io.EOF
		}
		st.counters.RecordParseError()
		fmt.Fprint(st.rw, "parse error\n\n")
		fmt.Fprint(st.rw, prompt)
		return nil
	}

	st.counters.RecordParseOK()
	st.flushLine()

	switch result.Type {
	case dsl.DCC, dsl.Raw:
		fmt.Fprint(st.rw, "ok\n\n")
		st.out.Add(result.Packet)

	case dsl.Sys:
		st.counters.RecordSysCmd()
		st.runCommand(result.Command)
	}

	fmt.Fprint(st.rw, prompt)
	return nil
}

// Serve runs ServeOne in a loop until it returns an error (typically
// io.EOF when the console disconnects).
func (st *Station) Serve() error {
	fmt.Fprint(st.rw, prompt)
	for {
		if err := st.ServeOne(); err != nil {
			return err
		}
	}
}

func (st *Station) runCommand(cmd sysinfo.Command) {
	switch cmd.Type {
	case sysinfo.CmdStatus:
		st.writeStatus()
	case sysinfo.CmdHelp:
		fmt.Fprint(st.rw, helpText)
	case sysinfo.CmdCacheClear:
		st.cache.Clear()
		fmt.Fprint(st.rw, "cache cleared\n")
	case sysinfo.CmdCacheShow:
		st.writeCacheEntry(cmd.Address)
	}
}

func (st *Station) writeStatus() {
	snap := st.counters.Snapshot()
	fmt.Fprintf(st.rw, "tx packets:   %d\n", snap.TxPackets)
	fmt.Fprintf(st.rw, "tx bytes:     %d\n", snap.TxBytes)
	fmt.Fprintf(st.rw, "parse ok:     %d\n", snap.ParseOK)
	fmt.Fprintf(st.rw, "parse error:  %d\n", snap.ParseErr)
	fmt.Fprintf(st.rw, "sys commands: %d\n", snap.SysCmds)
	fmt.Fprintf(st.rw, "queue drops:  %d\n", snap.QueueDrops)
}

func (st *Station) writeCacheEntry(address byte) {
	packet := st.cache.Get(address)
	if packet == nil {
		fmt.Fprintf(st.rw, "no cached packet for loco with address %d\n\n", address)
		return
	}

	direction := "reverse"
	if packet.Direction() == dcc.Forward {
		direction = "forward"
	}

	fmt.Fprint(st.rw, "cached packet details\n")
	fmt.Fprintf(st.rw, "  address:\t%d\n", address)
	fmt.Fprintf(st.rw, "  speed:\t%d\n", packet.SpeedStep())
	fmt.Fprintf(st.rw, "  direction:\t%s\n", direction)
	fmt.Fprintf(st.rw, "  hex:\t\t%s\n", packet.HexString())
	fmt.Fprintf(st.rw, "  binary:\t%s\n\n", packet.BinaryString())
}
