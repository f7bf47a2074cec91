package dsl

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/mikey-austin/freedcc/internal/dcc"
	"github.com/mikey-austin/freedcc/internal/sysinfo"
)

// ResultType distinguishes what a successful Parse produced.
type ResultType int

const (
	// Undef is the zero value and never appears in a successful Result.
	Undef ResultType = iota
	// DCC is a baseline locomotive packet (forward/reverse/stop addr).
	DCC
	// Raw is a verbatim packet decoded from a raw hex literal.
	Raw
	// Sys is a system command (show status, help, cache clear/show).
	Sys
)

// Result is the parser's tagged output: Packet is populated for DCC
// and Raw, Command for Sys.
type Result struct {
	Type    ResultType
	Packet  *dcc.Packet
	Command sysinfo.Command
}

// FlushFunc discards the remainder of the current input line after a
// parse error, so the next Parse call starts on a clean line.
type FlushFunc func()

// Parser is a recursive-descent parser with one token of lookahead,
// reading from a scanner over the console's character stream.
type Parser struct {
	lex   *lexer
	flush FlushFunc
}

// New returns a Parser reading from src. flush, if non-nil, is
// invoked after any parse error.
func New(src io.ByteScanner, flush FlushFunc) *Parser {
	return &Parser{lex: newLexer(src), flush: flush}
}

func (p *Parser) fail(err error) error {
	if p.flush != nil {
		p.flush()
	}
	return err
}

func (p *Parser) next() (token, error) {
	return p.lex.next()
}

func (p *Parser) expectNumber() (int, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	if tok.typ != tokNumber {
		return 0, errors.New("dsl: expected a number")
	}
	return tok.num, nil
}

// Parse reads and parses one command from the input stream. On
// success it returns the Result; on any lexical or syntax error it
// flushes the stream to the next line boundary (via FlushFunc) and
// returns the error. A caller uninterested in the parsed value beyond
// the syntax check can simply discard the Result.
func (p *Parser) Parse() (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}

	switch tok.typ {
	case tokRaw:
		return p.parseRaw()
	case tokHelp:
		return &Result{Type: Sys, Command: sysinfo.Command{Type: sysinfo.CmdHelp}}, nil
	case tokShow:
		return p.parseShow()
	case tokCache:
		return p.parseCache()
	case tokForward:
		return p.parseMove(dcc.Forward)
	case tokReverse:
		return p.parseMove(dcc.Reverse)
	case tokStop:
		return p.parseStop()
	case tokEOF:
		return nil, p.fail(errors.New("dsl: empty command"))
	default:
		return nil, p.fail(fmt.Errorf("dsl: unexpected token to start a command"))
	}
}

func (p *Parser) parseRaw() (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}
	if tok.typ != tokHex {
		return nil, p.fail(errors.New("dsl: expected a hex literal after raw"))
	}

	decoded, err := hex.DecodeString(tok.hex)
	if err != nil {
		return nil, p.fail(fmt.Errorf("dsl: invalid hex literal: %w", err))
	}

	packet, err := dcc.New(len(decoded))
	if err != nil {
		return nil, p.fail(err)
	}
	copy(packet.Bytes, decoded)

	return &Result{Type: Raw, Packet: packet}, nil
}

func (p *Parser) parseShow() (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}
	if tok.typ != tokStatus {
		return nil, p.fail(errors.New("dsl: expected status after show"))
	}
	return &Result{Type: Sys, Command: sysinfo.Command{Type: sysinfo.CmdStatus}}, nil
}

func (p *Parser) parseCache() (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}

	switch tok.typ {
	case tokClear:
		return &Result{Type: Sys, Command: sysinfo.Command{Type: sysinfo.CmdCacheClear}}, nil
	case tokShow:
		addr, err := p.expectNumber()
		if err != nil {
			return nil, p.fail(err)
		}
		return &Result{
			Type:    Sys,
			Command: sysinfo.Command{Type: sysinfo.CmdCacheShow, Address: byte(addr)},
		}, nil
	default:
		return nil, p.fail(errors.New("dsl: expected clear or show after cache"))
	}
}

// parseMove implements both forward and reverse, which share a
// grammar that accepts addr/speed in either order.
func (p *Parser) parseMove(dir dcc.Direction) (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}

	var addr, speed int
	switch tok.typ {
	case tokAddr:
		if addr, err = p.expectNumber(); err != nil {
			return nil, p.fail(err)
		}
		tok2, err := p.next()
		if err != nil {
			return nil, p.fail(err)
		}
		if tok2.typ != tokSpeed {
			return nil, p.fail(errors.New("dsl: expected speed after addr"))
		}
		if speed, err = p.expectNumber(); err != nil {
			return nil, p.fail(err)
		}
	case tokSpeed:
		if speed, err = p.expectNumber(); err != nil {
			return nil, p.fail(err)
		}
		tok2, err := p.next()
		if err != nil {
			return nil, p.fail(err)
		}
		if tok2.typ != tokAddr {
			return nil, p.fail(errors.New("dsl: expected addr after speed"))
		}
		if addr, err = p.expectNumber(); err != nil {
			return nil, p.fail(err)
		}
	default:
		return nil, p.fail(errors.New("dsl: expected addr or speed"))
	}

	packet := dcc.NewBaseline()
	packet.SetPreamble()
	packet.SetAddress(byte(addr))
	packet.SetSpeedDirectionPreamble()
	packet.SetDirection(dir)
	packet.SetSpeed(speed)
	packet.SetChecksum()
	packet.SetEnd()

	return &Result{Type: DCC, Packet: packet}, nil
}

// parseStop implements the three forms of stop: STOP addr (a per-loco
// speed-0 packet), STOP ALL (emergency stop, cuts power), and bare
// STOP (broadcast stop, leaves power applied).
func (p *Parser) parseStop() (*Result, error) {
	tok, err := p.next()
	if err != nil {
		return nil, p.fail(err)
	}

	switch tok.typ {
	case tokAddr:
		addr, err := p.expectNumber()
		if err != nil {
			return nil, p.fail(err)
		}
		packet := dcc.NewBaseline()
		packet.SetPreamble()
		packet.SetAddress(byte(addr))
		packet.SetSpeedDirectionPreamble()
		packet.SetSpeed(0)
		packet.SetChecksum()
		packet.SetEnd()
		return &Result{Type: DCC, Packet: packet}, nil

	case tokAll:
		packet := dcc.NewBaseline()
		packet.EmergencyStop()
		return &Result{Type: DCC, Packet: packet}, nil

	case tokEOF:
		// Bare stop: the broadcast-stop literal already carries its
		// own preamble and checksum bits, so there's nothing left to
		// set.
		packet := dcc.NewBaseline()
		packet.BroadcastStop()
		return &Result{Type: DCC, Packet: packet}, nil

	default:
		return nil, p.fail(fmt.Errorf("dsl: unexpected token after stop"))
	}
}
