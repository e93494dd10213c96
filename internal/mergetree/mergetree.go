// Package mergetree collapses the 2^N expanded variants of a document into a
// single tagged line sequence by repeated pairwise reconciliation.
package mergetree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/reconcile"
	"github.com/fwessels/ifdef-merge/internal/tag"
)

var log = logger.ForComponent("mergetree")

var (
	ErrNoSymbols        = errors.New("no symbols to reconcile")
	ErrEmptyRound       = errors.New("merge round produced no sequences")
	ErrUnpaired         = errors.New("configuration has no complement")
	ErrMissingVariant   = errors.New("missing variant")
	ErrDuplicateVariant = errors.New("duplicate variant")
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
)

// Variant is the expanded text of the document under one complete
// configuration.
type Variant struct {
	Config tag.Config
	Text   string
}

// Source is one sequence of a merge round together with the configuration
// its lines all share.
type Source struct {
	Config tag.Config
	Lines  []tag.Line
}

// Configurations enumerates every complete configuration over symbols.
// Symbols vary from last to first, defined before undefined, so entries 2k
// and 2k+1 differ only in the last symbol.
func Configurations(symbols []string) []tag.Config {
	n := len(symbols)
	out := make([]tag.Config, 0, 1<<n)
	for x := 0; x < 1<<n; x++ {
		lits := make([]tag.Literal, n)
		for i, sym := range symbols {
			if x&(1<<(n-1-i)) == 0 {
				lits[i] = tag.D(sym)
			} else {
				lits[i] = tag.U(sym)
			}
		}
		out = append(out, tag.MustNew(lits...))
	}
	return out
}

// Options configures a Driver.
type Options struct {
	Reconcile reconcile.Options
	// Transform, if set, rewrites each variant's tagged lines before the
	// first round (comment folding hooks in here).
	Transform func([]tag.Line) []tag.Line
}

// Report describes a finished merge.
type Report struct {
	Rounds int
	Merges int
	Common int
	OnlyA  int
	OnlyB  int
}

// Driver runs the merge tree over a fixed, ordered symbol set.
type Driver struct {
	symbols []string
	opts    Options
}

func NewDriver(symbols []string, opts Options) (*Driver, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	sorted := slices.Clone(symbols)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(symbols) {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateSymbol, symbols)
	}
	return &Driver{symbols: slices.Clone(symbols), opts: opts}, nil
}

func (d *Driver) Symbols() []string { return slices.Clone(d.symbols) }

// Merge reconciles one variant per complete configuration into the final
// tagged line sequence. Round r pairs sources on symbol N-1-r.
func (d *Driver) Merge(variants []Variant) ([]tag.Line, Report, error) {
	gen, err := d.initial(variants)
	if err != nil {
		return nil, Report{}, err
	}

	var rep Report
	for r := 0; r < len(d.symbols); r++ {
		symbol := d.symbols[len(d.symbols)-1-r]
		next, err := d.round(gen, symbol, &rep)
		if err != nil {
			return nil, Report{}, fmt.Errorf("round %d (%s): %w", r+1, symbol, err)
		}
		if len(next) == 0 {
			return nil, Report{}, fmt.Errorf("%w: round %d (%s)", ErrEmptyRound, r+1, symbol)
		}
		log.Debug("round complete", "round", r+1, "symbol", symbol, "sources", len(next))
		gen = next
		rep.Rounds++
	}
	if len(gen) != 1 {
		return nil, Report{}, fmt.Errorf("%w: %d sources left after %d rounds", ErrUnpaired, len(gen), rep.Rounds)
	}
	return gen[0].Lines, rep, nil
}

func (d *Driver) initial(variants []Variant) ([]Source, error) {
	byKey := make(map[string]Variant, len(variants))
	for _, v := range variants {
		if err := v.Config.Validate(d.symbols); err != nil {
			return nil, err
		}
		if !v.Config.Complete(d.symbols) {
			return nil, fmt.Errorf("%w: %q is not a complete configuration", tag.ErrMalformed, v.Config.Key())
		}
		if _, dup := byKey[v.Config.Key()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariant, v.Config.Key())
		}
		byKey[v.Config.Key()] = v
	}

	configs := Configurations(d.symbols)
	gen := make([]Source, 0, len(configs))
	for _, cfg := range configs {
		v, ok := byKey[cfg.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingVariant, cfg.Key())
		}
		lines := tag.Variant(v.Text, cfg)
		if d.opts.Transform != nil {
			lines = d.opts.Transform(lines)
		}
		gen = append(gen, Source{Config: cfg, Lines: lines})
	}
	return gen, nil
}

func (d *Driver) round(gen []Source, symbol string, rep *Report) ([]Source, error) {
	if len(gen)%2 != 0 {
		return nil, fmt.Errorf("%w: odd source count %d", ErrUnpaired, len(gen))
	}
	next := make([]Source, 0, len(gen)/2)
	for k := 0; k+1 < len(gen); k += 2 {
		a, b := gen[k], gen[k+1]
		s, ok := tag.Siblings(a.Config, b.Config)
		if !ok || s != symbol {
			return nil, fmt.Errorf("%w: %q and %q on %s", ErrUnpaired, a.Config.Key(), b.Config.Key(), symbol)
		}
		pa, _ := a.Config.Lookup(symbol)
		pb, _ := b.Config.Lookup(symbol)
		lines, st, err := reconcile.Merge(
			reconcile.Side{Lines: a.Lines, Literal: tag.Literal{Symbol: symbol, Polarity: pa}},
			reconcile.Side{Lines: b.Lines, Literal: tag.Literal{Symbol: symbol, Polarity: pb}},
			d.opts.Reconcile,
		)
		if err != nil {
			return nil, err
		}
		rep.Merges++
		rep.Common += st.Common
		rep.OnlyA += st.OnlyA
		rep.OnlyB += st.OnlyB
		next = append(next, Source{Config: a.Config.Without(symbol), Lines: lines})
	}
	return next, nil
}
