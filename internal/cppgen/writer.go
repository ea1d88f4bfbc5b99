// Package cppgen renders overload resolver trees as C++ dispatch functions
// against the host C API and the Bridge runtime support library.
package cppgen

import (
	"fmt"
	"strings"
)

const indentUnit = "    "

// writer accumulates generated C++ one line at a time.
type writer struct {
	buf   strings.Builder
	depth int
}

func (w *writer) in()  { w.depth++ }
func (w *writer) out() { w.depth-- }

// line writes s verbatim at the current indentation.
func (w *writer) line(s string) {
	if s == "" {
		w.buf.WriteByte('\n')
		return
	}
	w.buf.WriteString(strings.Repeat(indentUnit, w.depth))
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
}

func (w *writer) linef(format string, args ...any) {
	w.line(fmt.Sprintf(format, args...))
}

// label writes a jump target one level left of the surrounding code.
func (w *writer) label(name string) {
	w.buf.WriteString(strings.Repeat(indentUnit, max(w.depth-1, 0)))
	w.buf.WriteString(name)
	w.buf.WriteString(":\n")
}

// block writes "header {", the indented body and the closing brace. An
// empty header opens a bare scope.
func (w *writer) block(header string, body func()) {
	if header == "" {
		w.line("{")
	} else {
		w.line(header + " {")
	}
	w.in()
	body()
	w.out()
	w.line("}")
}

// code writes user supplied text, one output line per input line, dropping
// the indentation common to all of them.
func (w *writer) code(text string) {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			w.line("")
			continue
		}
		w.line(strings.TrimRight(l[common:], " \t"))
	}
}

func (w *writer) String() string {
	return w.buf.String()
}
