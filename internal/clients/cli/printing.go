// Package cli provides utilities for nicer CLI output
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/ansi"
)

const indentation = "  "

func makeIndentation(indent int) string {
	return strings.Repeat(indentation, indent)
}

// IndentedFprintf prints a formatted message to w, prefixed by the indentation level.
func IndentedFprintf(indent int, w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, "%s%s", makeIndentation(indent), fmt.Sprintf(format, a...))
}

func IndentedFprintln(indent int, w io.Writer, a ...any) {
	_, _ = fmt.Fprintf(w, "%s%s\n", makeIndentation(indent), fmt.Sprint(a...))
}

// Warnf prints a warning to w, prefixed by the indentation level.
func Warnf(indent int, w io.Writer, format string, a ...any) {
	IndentedFprintf(indent, w, "Warning: %s\n", fmt.Sprintf(format, a...))
}

// IndentedWriter

// IndentedWriter indents every line of text written through it, without counting ANSI escape
// sequences as text. It's used to nest progress output of other tools (e.g. git push) under our
// own output.
type IndentedWriter struct {
	indent     int
	ansiWriter *ansi.Writer
	skipIndent bool
	ansi       bool
}

func NewIndentedWriter(indent int, forward io.Writer) *IndentedWriter {
	return &IndentedWriter{
		indent: indent,
		ansiWriter: &ansi.Writer{
			Forward: forward,
		},
	}
}

// IndentedWriter: io.Writer

func (w *IndentedWriter) Write(b []byte) (n int, err error) {
	// This method was adapted from the Writer.Write method in the indent package of the MIT-licensed
	// github.com/muesli/reflow project maintained by Christian Muehlhaeuser
	// (see https://github.com/muesli/reflow/blob/83f6379/indent/indent.go#L60). The method was
	// modified to properly indent after `\r` sequences.
	for _, c := range string(b) {
		switch {
		case c == '\x1B': // ANSI escape sequence
			w.ansi = true
		case w.ansi:
			if (c >= 0x41 && c <= 0x5a) || (c >= 0x61 && c <= 0x7a) {
				// ANSI sequence terminated
				w.ansi = false
			}
		default:
			if !w.skipIndent {
				w.ansiWriter.ResetAnsi()
				if _, err := w.ansiWriter.Write([]byte(makeIndentation(w.indent))); err != nil {
					return 0, err
				}

				w.skipIndent = true
				w.ansiWriter.RestoreAnsi()
			}

			if c == '\n' || c == '\r' {
				// end of current line
				w.skipIndent = false
			}
		}

		if _, err := w.ansiWriter.Write([]byte(string(c))); err != nil {
			return 0, err
		}
	}

	return len(b), nil
}
