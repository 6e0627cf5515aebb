// Package console implements the SBI-backed console device and the
// line-oriented shell protocol spec.md §6 describes: echo printables,
// handle CR/LF as a line terminator, and handle backspace/delete as an
// edit, exactly as the original shell.rs does it.
package console

import (
	"sync"

	"defs"
	"sbi"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/rangetable"
)

// Control bytes the line editor treats specially, matching
// user/src/bin/shell.rs in the original source exactly.
const (
	LF = 0x0a
	CR = 0x0d
	DL = 0x7f
	BS = 0x08
)

// printableRanges admits the ASCII printable range plus the four control
// bytes above; everything else is dropped by the echo filter rather than
// written to the console, so stray high-bit noise from a misbehaving
// terminal never corrupts the echoed line.
var printableRanges = rangetable.New(LF, CR, DL, BS)

func init() {
	for b := rune(0x20); b < 0x7f; b++ {
		printableRanges = rangetable.Merge(printableRanges, rangetable.New(b))
	}
}

// echoFilter drops every byte outside printableRanges instead of passing
// it through, via golang.org/x/text/runes rather than a hand-rolled
// byte-class switch.
func echoFilter() transform.Transformer {
	return runes.Remove(runes.NotIn(printableRanges))
}

/// Device_t is the console's Fdops_i implementation: Read pulls bytes from
/// the SBI debug console (blocking, one at a time), Write pushes them.
/// Stdin, Stdout, and Stderr below all share one Device_t, matching the
/// original's single bare UART with no per-descriptor buffering.
type Device_t struct {
	mu sync.Mutex
}

/// Console is the kernel's sole console device instance.
var Console Device_t

/// Read blocks until len(dst) bytes are available from the SBI console,
/// polling ConsoleGetchar, and returns the count read (always len(dst),
/// since this call only returns once satisfied).
func (d *Device_t) Read(dst []uint8) (int, defs.Err_t) {
	for i := range dst {
		var c int64
		for {
			c = sbi.ConsoleGetchar()
			if c >= 0 {
				break
			}
		}
		dst[i] = uint8(c)
	}
	return len(dst), 0
}

/// Write sends src to the SBI debug console one byte at a time.
func (d *Device_t) Write(src []uint8) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range src {
		sbi.ConsolePutchar(c)
	}
	return len(src), 0
}

/// Close is a no-op: the console device is never actually closed.
func (d *Device_t) Close() defs.Err_t { return 0 }

/// Reopen is a no-op: the console device carries no per-descriptor state
/// to duplicate.
func (d *Device_t) Reopen() defs.Err_t { return 0 }

/// LineEditor_t drives the line-oriented shell protocol over the console
/// device: echo printables, backspace/delete erase-and-blank-and-reposition
/// the last character, CR/LF terminate the line.
type LineEditor_t struct {
	dev     *Device_t
	echo    transform.Transformer
	line    []uint8
}

/// MkLineEditor returns a line editor reading and echoing through dev.
func MkLineEditor(dev *Device_t) *LineEditor_t {
	return &LineEditor_t{dev: dev, echo: echoFilter()}
}

func (le *LineEditor_t) echoByte(c uint8) {
	out, _, err := transform.Bytes(le.echo, []uint8{c})
	if err != nil || len(out) == 0 {
		return
	}
	le.dev.Write(out)
}

/// ReadLine reads one line from the console, echoing as it goes and
/// honoring backspace/delete edits, and returns it without the
/// terminator.
func (le *LineEditor_t) ReadLine() string {
	le.line = le.line[:0]
	buf := [1]uint8{}
	for {
		le.dev.Read(buf[:])
		c := buf[0]
		switch c {
		case LF, CR:
			le.dev.Write([]uint8{LF})
			line := string(le.line)
			le.line = le.line[:0]
			return line
		case BS, DL:
			if len(le.line) > 0 {
				le.line = le.line[:len(le.line)-1]
				le.dev.Write([]uint8{BS, ' ', BS})
			}
		default:
			le.line = append(le.line, c)
			le.echoByte(c)
		}
	}
}
