// Package console implements the kernel console (component J): an
// io.Writer over a fixed-size character grid that queues everything
// written before a physical device is attached, so boot-time log lines
// are never lost to the chicken-and-egg problem of the console driver
// itself needing to log.
package console

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Attr is a console color attribute, the same 16-entry palette a VGA text
// console exposes.
type Attr uint8

const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

// ScrollDir is a scroll direction.
type ScrollDir uint8

const (
	Up ScrollDir = iota
	Down
)

// Device is implemented by whatever physical console the boot collaborator
// hands the kernel (a framebuffer-backed text grid, a VGA buffer, ...).
// Console itself never touches hardware; it only drives this interface.
type Device interface {
	Dimensions() (width, height uint16)
	Clear(x, y, w, h uint16)
	Scroll(dir ScrollDir, lines uint16)
	WriteGlyph(ch byte, attr Attr, x, y uint16)
}

// maxPending bounds the pre-install queue so a silent boot never grows it
// without limit; the oldest bytes are dropped once the cap is hit.
const maxPending = 4096

// Writer is an io.Writer onto a character-grid Device. Writes before
// Attach are queued byte-for-byte and flushed once a Device arrives.
type Writer struct {
	mu   sync.Mutex
	dev  Device
	w, h uint16
	x, y uint16
	attr Attr

	pending []byte
}

// NewWriter returns a Writer with no Device attached yet.
func NewWriter() *Writer {
	return &Writer{attr: LightGrey}
}

// SetAttr changes the color used for subsequently written glyphs.
func (c *Writer) SetAttr(a Attr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attr = a
}

// Attach installs dev as the backing device and flushes everything written
// so far onto it.
func (c *Writer) Attach(dev Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev = dev
	c.w, c.h = dev.Dimensions()
	dev.Clear(0, 0, c.w, c.h)
	c.x, c.y = 0, 0
	pending := c.pending
	c.pending = nil
	c.writeLocked(pending)
}

// Write implements io.Writer, rendering p onto the attached Device, or
// queueing it if none is attached yet.
func (c *Writer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		c.pending = append(c.pending, p...)
		if over := len(c.pending) - maxPending; over > 0 {
			c.pending = c.pending[over:]
		}
		return len(p), nil
	}
	c.writeLocked(p)
	return len(p), nil
}

func (c *Writer) writeLocked(p []byte) {
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		p = p[size:]
		c.putRune(r)
	}
}

// putRune folds r to its narrow form (a fixed character-cell console has
// no room for a fullwidth glyph to occupy two cells worth of meaning) and
// advances the cursor, wrapping and scrolling as needed.
func (c *Writer) putRune(r rune) {
	if r == '\n' {
		c.newline()
		return
	}
	if r == '\r' {
		c.x = 0
		return
	}
	narrow := width.Narrow.String(string(r))
	ch := byte('?')
	if len(narrow) > 0 {
		ch = narrow[0]
	}
	c.dev.WriteGlyph(ch, c.attr, c.x, c.y)
	c.x++
	if c.x >= c.w {
		c.newline()
	}
}

func (c *Writer) newline() {
	c.x = 0
	c.y++
	if c.y >= c.h {
		c.dev.Scroll(Down, 1)
		c.y = c.h - 1
	}
}
