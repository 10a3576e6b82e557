// Package console implements the sys_putchar external collaborator: a
// byte sink the kernel writes to and diagnostics can replay, with no
// line editor or TTY handling of its own.
package console

import (
	"io"

	"envkernel/internal/circbuf"
	"envkernel/internal/defs"
)

/// Console_t is a putchar sink that also retains recent output for
/// diagnostic snapshots.
type Console_t struct {
	out  io.Writer
	hist circbuf.Circbuf_t
}

/// New returns a console writing to out and retaining the last
/// histsz bytes for diagnostics.
func New(out io.Writer, histsz int) *Console_t {
	c := &Console_t{out: out}
	c.hist.Init(histsz)
	return c
}

/// Putchar writes a single byte to the console, the entire
/// sys_putchar contract: no error path.
func (c *Console_t) Putchar(b byte) {
	c.out.Write([]byte{b})
	c.hist.Write([]byte{b})
}

/// History returns a snapshot of recently written bytes, oldest first.
func (c *Console_t) History() []byte {
	return c.hist.Bytes()
}

/// Device returns the device identifier sys_putchar writes to.
func (c *Console_t) Device() int {
	return defs.D_CONSOLE
}
