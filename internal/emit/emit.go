// Package emit turns a reconciled tagged line stream into a document with
// conditional compilation directives.
package emit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/tag"
)

var log = logger.ForComponent("emit")

// Stats is the result of one emission pass.
type Stats struct {
	Lines      int // lines written, directives included
	Text       int
	Directives int
	Blocks     int // opened #ifdef/#ifndef/#if
	Elses      int
}

// Open returns the opening directive for a non-empty guard: #ifdef or
// #ifndef for one literal, otherwise #if over a conjunction of defined()
// terms in the configuration's order.
func Open(g tag.Config) string {
	lits := g.Literals()
	if len(lits) == 1 {
		if lits[0].Polarity == tag.Defined {
			return "#ifdef " + lits[0].Symbol
		}
		return "#ifndef " + lits[0].Symbol
	}
	terms := make([]string, len(lits))
	for i, l := range lits {
		if l.Polarity == tag.Defined {
			terms[i] = "defined(" + l.Symbol + ")"
		} else {
			terms[i] = "!defined(" + l.Symbol + ")"
		}
	}
	return "#if " + strings.Join(terms, " && ")
}

// Close returns the #endif for g, annotated with its key.
func Close(g tag.Config) string {
	return "#endif /* " + g.Key() + " */"
}

type writer struct {
	w     *bufio.Writer
	stats Stats
	err   error
}

func (e *writer) put(s string, directive bool) {
	if e.err != nil {
		return
	}
	e.stats.Lines++
	if directive {
		e.stats.Directives++
		s += "\n"
	} else {
		e.stats.Text++
	}
	log.Debug("line", "n", e.stats.Lines, "text", strings.TrimSuffix(s, "\n"))
	_, e.err = e.w.WriteString(s)
}

// Emit writes lines to w, opening, switching and closing guards as the
// configuration changes from one line to the next.
func Emit(w io.Writer, lines []tag.Line) (Stats, error) {
	e := &writer{w: bufio.NewWriter(w)}
	var guard tag.Config
	for i, l := range lines {
		text := l.Text
		if !strings.HasSuffix(text, "\n") && i < len(lines)-1 {
			text += "\n"
		}
		switch {
		case l.Config.Equal(guard):
		case tag.Complementary(guard, l.Config):
			e.put("#else", true)
			e.stats.Elses++
			guard = l.Config
		default:
			if !guard.Empty() {
				e.put(Close(guard), true)
			}
			if !l.Config.Empty() {
				e.put(Open(l.Config), true)
				e.stats.Blocks++
			}
			guard = l.Config
		}
		if !guard.Empty() && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		e.put(text, false)
	}
	if !guard.Empty() {
		e.put(Close(guard), true)
	}
	if e.err != nil {
		return e.stats, fmt.Errorf("emit: %w", e.err)
	}
	if err := e.w.Flush(); err != nil {
		return e.stats, fmt.Errorf("emit: %w", err)
	}
	return e.stats, nil
}

// String is Emit into a string.
func String(lines []tag.Line) (string, Stats, error) {
	var b strings.Builder
	st, err := Emit(&b, lines)
	return b.String(), st, err
}
