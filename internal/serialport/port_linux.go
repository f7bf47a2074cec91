//go:build linux

package serialport

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Termios mirrors the kernel's struct termios layout.
type Termios struct {
	Iflag IFlag    /* input mode flags */
	Oflag OFlag    /* output mode flags */
	Cflag CFlag    /* control mode flags */
	Lflag LFlag    /* local mode flags */
	Line  byte     /* line discipline */
	Cc    [19]byte /* control characters */
}

type IFlag uint32
type OFlag uint32
type CFlag uint32
type LFlag uint32

// Control mode flags needed to set an 8-N-1 line.
const (
	CBAUD  = CFlag(0010017)
	B0     = CFlag(0000000)
	B9600  = CFlag(0000015)
	B19200 = CFlag(0000016)
	B38400 = CFlag(0000017)

	CSIZE = CFlag(0000060)
	CS8   = CFlag(0000060)

	CSTOPB = CFlag(0000100)
	CREAD  = CFlag(0000200)
	PARENB = CFlag(0000400)
	HUPCL  = CFlag(0002000)
	CLOCAL = CFlag(0004000)
)

// Input mode flags cleared by MakeRaw.
const (
	IGNBRK = IFlag(0000001)
	BRKINT = IFlag(0000002)
	PARMRK = IFlag(0000010)
	ISTRIP = IFlag(0000040)
	INLCR  = IFlag(0000100)
	IGNCR  = IFlag(0000200)
	ICRNL  = IFlag(0000400)
	IXON   = IFlag(0002000)
)

// Output mode flags cleared by MakeRaw.
const OPOST = OFlag(0000001)

// Local mode flags cleared by MakeRaw.
const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

// MakeRaw clears every flag that would get in the way of a raw,
// unbuffered, 8-bit-clean byte stream — the line discipline the
// console and the (hypothetical) track-side UART both need.
func (attrs *Termios) MakeRaw() {
	attrs.Iflag &= ^(IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON)
	attrs.Oflag &= ^(OPOST)
	attrs.Lflag &= ^(ECHO | ECHONL | ICANON | ISIG | IEXTEN)
	attrs.Cflag &= ^(CSIZE | PARENB)
	attrs.Cflag |= CS8
}

// SetSpeed sets both the input and output baud rate.
func (attrs *Termios) SetSpeed(speed CFlag) {
	attrs.Cflag &= ^(CBAUD)
	attrs.Cflag |= speed
}

// Action selects when a termios change takes effect; see tcsetattr(3).
type Action uintptr

const (
	TCSANOW Action = iota
	TCSADRAIN
	TCSAFLUSH
)

// Queue selects which buffer Flush discards; see tcflush(3).
type Queue uintptr

const (
	TCIFLUSH Queue = iota
	TCOFLUSH
	TCIOFLUSH
)

// Winsize mirrors the kernel's struct winsize, used only by OpenPTY
// to size a development pseudo-terminal.
type Winsize struct {
	Row, Col       uint16
	Xpixel, Ypixel uint16
}

// Options configures how a Port is opened.
type Options struct {
	ReadTimeout time.Duration
	OpenMode    int
}

// DefaultOptions opens the device read-write in blocking mode, without
// making it the controlling terminal, and without a read timeout.
func DefaultOptions() *Options {
	return &Options{ReadTimeout: -1, OpenMode: syscall.O_RDWR | syscall.O_NOCTTY}
}

// Port is an open tty or pty file descriptor.
type Port struct {
	options *Options
	closed  atomic.Bool
	f       int
}

// Open opens name (a device path such as /dev/ttyUSB0) with opts. A
// nil opts uses DefaultOptions.
func Open(name string, opts *Options) (*Port, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fd, err := syscall.Open(name, opts.OpenMode, 0)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("open %s", name), err)
	}
	return &Port{options: opts, f: fd}, nil
}

// OpenConsole opens name, puts it into raw mode and sets its speed to
// baud — the station's actual entry point, rather than the generic
// Open/GetAttr/MakeRaw/SetAttr sequence callers would otherwise have
// to hand-assemble themselves.
func OpenConsole(name string, baud CFlag) (*Port, error) {
	port, err := Open(name, nil)
	if err != nil {
		return nil, err
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baud)
	attrs.Cflag |= CREAD | CLOCAL
	if err := port.SetAttr(TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}

	if err := port.Flush(TCIFLUSH); err != nil {
		port.Close()
		return nil, err
	}

	return port, nil
}

func (p *Port) Write(data []byte) (n int, err error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return syscall.Write(p.f, data)
}

func (p *Port) readTimeout(data []byte, timeout time.Duration) (int, error) {
	if err := poll.WaitInput(p.f, timeout); err != nil {
		return 0, err
	}
	return syscall.Read(p.f, data)
}

func (p *Port) Read(data []byte) (n int, err error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if p.options.ReadTimeout > -1 {
		return p.readTimeout(data, p.options.ReadTimeout)
	}
	return syscall.Read(p.f, data)
}

// ReadTimeout reads with an explicit timeout, overriding the Port's
// configured default for this call only.
func (p *Port) ReadTimeout(data []byte, timeout time.Duration) (n int, err error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.readTimeout(data, timeout)
}

func (p *Port) SetReadTimeout(timeout time.Duration) {
	p.options.ReadTimeout = timeout
}

func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.f
}

func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.f
		p.f = -1
		return syscall.Close(fd)
	}
	return ErrClosed
}

func (p *Port) GetAttr() (*Termios, error) {
	attrs := &Termios{}
	if err := ioctl.Ioctl(uintptr(p.f), tcgets, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, wrapErr("get termios", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr(when Action, attrs *Termios) error {
	return wrapErr("set termios", ioctl.Ioctl(uintptr(p.f), tcsets+uintptr(when), uintptr(unsafe.Pointer(attrs))))
}

// MakeRaw is a convenience wrapper around GetAttr/Termios.MakeRaw/SetAttr.
func (p *Port) MakeRaw() error {
	attrs, err := p.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	return p.SetAttr(TCSANOW, attrs)
}

// Flush discards data written but not transmitted, or received but
// not read, depending on queue.
func (p *Port) Flush(queue Queue) error {
	return wrapErr("flush", ioctl.Ioctl(uintptr(p.f), tcflsh, uintptr(queue)))
}

// SetWinSize sets the pty's reported window size. Meaningless for a
// real tty; used only for pseudo-terminals opened via OpenPTY.
func (p *Port) SetWinSize(ws *Winsize) error {
	return wrapErr("set winsize", ioctl.Ioctl(uintptr(p.f), tiocswinsz, uintptr(unsafe.Pointer(ws))))
}

// GetWinSize reads back the pty's reported window size.
func (p *Port) GetWinSize() (*Winsize, error) {
	ws := &Winsize{}
	if err := ioctl.Ioctl(uintptr(p.f), tiocgwinsz, uintptr(unsafe.Pointer(ws))); err != nil {
		return nil, wrapErr("get winsize", err)
	}
	return ws, nil
}

// SetLockPT locks or unlocks the slave side of a /dev/ptmx master, as
// required before the slave device node can be opened.
func (p *Port) SetLockPT(locked bool) error {
	var v int32
	if locked {
		v = 1
	}
	return wrapErr("set pt lock", ioctl.Ioctl(uintptr(p.f), tiocsptlck, uintptr(unsafe.Pointer(&v))))
}

// GetPTPeer opens and returns the slave side of a /dev/ptmx master.
// Unlike most ioctls, TIOCGPTPEER hands back a brand new fd (like
// openat) rather than writing through a pointer argument, so this
// goes straight to the raw syscall instead of the goioctl helpers.
func (p *Port) GetPTPeer(flags int) (*Port, error) {
	fd, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(p.f), tiocgptpeer, uintptr(flags))
	if errno != 0 {
		return nil, wrapErr("get pt peer", errno)
	}
	return &Port{options: DefaultOptions(), f: int(fd)}, nil
}

var ErrClosed = Error{"port already closed", syscall.EBADF}
