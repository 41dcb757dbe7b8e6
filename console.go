package deferloop

import (
	"fmt"
	"io"
	"strings"
)

// Console records lines of output, in the order they were logged. It is the
// observable side effect of a program and its callbacks.
//
// The zero value is ready to use, and records without mirroring.
type Console struct {
	// Out, if set, receives every line as it is logged.
	Out   io.Writer
	lines []string
}

// NewConsole returns a Console mirroring to out, which may be nil.
func NewConsole(out io.Writer) *Console {
	return &Console{Out: out}
}

// Log formats its operands like console.log, separated by single spaces, and
// records the result as one line.
func (c *Console) Log(args ...any) {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, arg)
	}
	line := b.String()
	c.lines = append(c.lines, line)
	if c.Out != nil {
		fmt.Fprintln(c.Out, line)
	}
}

// Lines returns a copy of the recorded lines.
func (c *Console) Lines() []string {
	if len(c.lines) == 0 {
		return nil
	}
	return append([]string(nil), c.lines...)
}

// Reset discards the recorded lines.
func (c *Console) Reset() {
	c.lines = nil
}
