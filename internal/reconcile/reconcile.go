// Package reconcile merges two tagged line sequences that differ only in the
// assignment of one symbol.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"lukechampine.com/blake3"

	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/tag"
)

var log = logger.ForComponent("reconcile")

var (
	// ErrAlignment is returned when the aligner reports an equal run whose
	// two sides have different lengths.
	ErrAlignment = errors.New("alignment size mismatch")

	// ErrSymbolMismatch is returned when the two sides are not assigned
	// opposite polarities of the symbol being merged.
	ErrSymbolMismatch = errors.New("sides do not differ in merge symbol")
)

// Side is one input of a pairwise merge: its lines and the literal its
// source holds for the symbol being merged.
type Side struct {
	Lines   []tag.Line
	Literal tag.Literal
}

// Options tunes the line aligner.
type Options struct {
	// AutoJunk enables the SequenceMatcher popularity heuristic, which
	// treats lines occurring in more than 1% of a long input as junk.
	AutoJunk bool
}

// Stats counts how a merge classified lines.
type Stats struct {
	Common  int
	OnlyA   int
	OnlyB   int
	Skipped bool // inputs were identical, no alignment was computed
}

// Merge reconciles a and b. Lines common to both keep the union of their
// configurations; lines present on one side only gain that side's literal.
// Deleted lines of a precede inserted lines of b within a replaced region.
func Merge(a, b Side, opts Options) ([]tag.Line, Stats, error) {
	if a.Literal.Complement() != b.Literal {
		return nil, Stats{}, fmt.Errorf("%w: %s and %s", ErrSymbolMismatch, a.Literal, b.Literal)
	}
	ta, tb := tag.Texts(a.Lines), tag.Texts(b.Lines)

	if len(ta) == len(tb) && digest(ta) == digest(tb) {
		out := make([]tag.Line, len(ta))
		for i := range ta {
			out[i] = common(a.Lines[i], b.Lines[i])
		}
		log.Debug("identical inputs", "symbol", a.Literal.Symbol, "lines", len(out))
		return out, Stats{Common: len(out), Skipped: true}, nil
	}

	m := difflib.NewMatcherWithJunk(ta, tb, opts.AutoJunk, nil)
	out := make([]tag.Line, 0, max(len(ta), len(tb)))
	var st Stats
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			if op.I2-op.I1 != op.J2-op.J1 {
				return nil, Stats{}, fmt.Errorf("%w: a[%d:%d] vs b[%d:%d]", ErrAlignment, op.I1, op.I2, op.J1, op.J2)
			}
			for k := 0; k < op.I2-op.I1; k++ {
				out = append(out, common(a.Lines[op.I1+k], b.Lines[op.J1+k]))
			}
			st.Common += op.I2 - op.I1
		case 'd', 'r', 'i':
			for _, l := range a.Lines[op.I1:op.I2] {
				out = append(out, only(l, a.Literal))
			}
			for _, l := range b.Lines[op.J1:op.J2] {
				out = append(out, only(l, b.Literal))
			}
			st.OnlyA += op.I2 - op.I1
			st.OnlyB += op.J2 - op.J1
		default:
			return nil, Stats{}, fmt.Errorf("unknown opcode %q", op.Tag)
		}
	}
	log.Debug("merged", "symbol", a.Literal.Symbol, "common", st.Common, "only_a", st.OnlyA, "only_b", st.OnlyB)
	return out, st, nil
}

// Lines of an equal run keep the text of a.
func common(la, lb tag.Line) tag.Line {
	return tag.Line{Text: la.Text, Config: tag.Union([]tag.Config{la.Config, lb.Config})}
}

func only(l tag.Line, lit tag.Literal) tag.Line {
	return tag.Line{Text: l.Text, Config: tag.Union([]tag.Config{l.Config}, lit)}
}

func digest(lines []string) [32]byte {
	h := blake3.New(32, nil)
	var n [8]byte
	for _, s := range lines {
		putLen(n[:], len(s))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func putLen(b []byte, v int) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}
