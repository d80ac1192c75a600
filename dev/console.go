package dev

import (
	"bufio"
	"io"
	"os"
)

// Console is a byte-at-a-time UTF-8 terminal on a single port: out writes
// to stdout, in blocks for the next stdin byte. The guest is expected to
// do its own line discipline.
type Console struct {
	w io.Writer
	r *bufio.Reader
}

func NewConsole() *Console {
	return &Console{w: os.Stdout, r: bufio.NewReader(os.Stdin)}
}

func (c *Console) OutU8(_ uint16, b byte) {
	// os.Stdout is unbuffered; one syscall per byte is fine at guest speed
	c.w.Write([]byte{b})
}

func (c *Console) InU8(_ uint16) byte {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0xFF // EOF looks like an unassigned port
	}
	return b
}
