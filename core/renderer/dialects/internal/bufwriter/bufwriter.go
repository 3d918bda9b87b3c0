// Package bufwriter is the string buffer the dialect renderers write SQL into.
package bufwriter

import (
	"fmt"
	"strings"
)

// Writer accumulates rendered SQL text. The zero value is ready to use.
type Writer struct {
	b strings.Builder
}

// WriteString appends s.
func (w *Writer) WriteString(s string) {
	w.b.WriteString(s)
}

// WriteStringf appends a formatted string.
func (w *Writer) WriteStringf(format string, args ...any) {
	fmt.Fprintf(&w.b, format, args...)
}

// WriteLine appends s followed by a newline.
func (w *Writer) WriteLine(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

// WriteLinef appends a formatted string followed by a newline.
func (w *Writer) WriteLinef(format string, args ...any) {
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

// Len returns the number of bytes written since the last Reset.
func (w *Writer) Len() int {
	return w.b.Len()
}

// Reset discards everything written.
func (w *Writer) Reset() {
	w.b.Reset()
}

func (w *Writer) String() string {
	return w.b.String()
}
