// Package tag holds the assignment literals and configurations that guard
// reconciled lines, and the tagged line type itself.
package tag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMalformed reports a configuration that cannot be represented: two
// literals for one symbol, a symbol outside the run's symbol set, or a
// literal that does not parse.
var ErrMalformed = errors.New("malformed configuration")

// Polarity is the assignment of one symbol.
type Polarity uint8

const (
	Defined Polarity = iota
	Undefined
)

func (p Polarity) Flip() Polarity {
	if p == Defined {
		return Undefined
	}
	return Defined
}

// Prefix returns the command line flag spelling, "-D" or "-U".
func (p Polarity) Prefix() string {
	if p == Defined {
		return "-D"
	}
	return "-U"
}

// Literal is one (symbol, polarity) pair.
type Literal struct {
	Symbol   string
	Polarity Polarity
}

func D(symbol string) Literal { return Literal{Symbol: symbol, Polarity: Defined} }
func U(symbol string) Literal { return Literal{Symbol: symbol, Polarity: Undefined} }

func (l Literal) String() string {
	return l.Polarity.Prefix() + l.Symbol
}

// Complement returns the literal for the same symbol with opposite polarity.
func (l Literal) Complement() Literal {
	return Literal{Symbol: l.Symbol, Polarity: l.Polarity.Flip()}
}

// ParseLiteral parses "-DNAME" or "-UNAME".
func ParseLiteral(s string) (Literal, error) {
	if len(s) < 3 {
		return Literal{}, fmt.Errorf("%w: bad literal %q", ErrMalformed, s)
	}
	var l Literal
	switch s[:2] {
	case "-D":
		l.Polarity = Defined
	case "-U":
		l.Polarity = Undefined
	default:
		return Literal{}, fmt.Errorf("%w: bad literal %q", ErrMalformed, s)
	}
	l.Symbol = s[2:]
	return l, nil
}

func compareLiterals(a, b Literal) int {
	if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
		return c
	}
	return int(a.Polarity) - int(b.Polarity)
}

// Config is a set of literals kept sorted by symbol, defined before
// undefined. The zero value is the empty configuration ("no guard").
// A Config is immutable once built; every operation returns a new one.
type Config struct {
	lits []Literal
}

// New builds a configuration, rejecting two literals for one symbol.
// Duplicate identical literals collapse.
func New(lits ...Literal) (Config, error) {
	c := Config{lits: slices.Clone(lits)}
	slices.SortFunc(c.lits, compareLiterals)
	c.lits = slices.Compact(c.lits)
	for i := 1; i < len(c.lits); i++ {
		if c.lits[i].Symbol == c.lits[i-1].Symbol {
			return Config{}, fmt.Errorf("%w: both %s and %s present", ErrMalformed, c.lits[i-1], c.lits[i])
		}
	}
	return c, nil
}

// MustNew is New for literals known to be well formed.
func MustNew(lits ...Literal) Config {
	c, err := New(lits...)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads a space separated key such as "-Dhello -Uworld".
func Parse(key string) (Config, error) {
	fields := strings.Fields(key)
	lits := make([]Literal, 0, len(fields))
	for _, f := range fields {
		l, err := ParseLiteral(f)
		if err != nil {
			return Config{}, err
		}
		lits = append(lits, l)
	}
	return New(lits...)
}

func (c Config) Len() int            { return len(c.lits) }
func (c Config) Empty() bool         { return len(c.lits) == 0 }
func (c Config) Literals() []Literal { return slices.Clone(c.lits) }

// Key is the canonical space separated form, "" for the empty configuration.
func (c Config) Key() string {
	parts := make([]string, len(c.lits))
	for i, l := range c.lits {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

func (c Config) String() string {
	if c.Empty() {
		return "(always)"
	}
	return c.Key()
}

func (c Config) Equal(o Config) bool {
	return slices.Equal(c.lits, o.lits)
}

func (c Config) Has(l Literal) bool {
	_, ok := slices.BinarySearchFunc(c.lits, l, compareLiterals)
	return ok
}

// Lookup returns the polarity assigned to symbol, if any.
func (c Config) Lookup(symbol string) (Polarity, bool) {
	for _, l := range c.lits {
		if l.Symbol == symbol {
			return l.Polarity, true
		}
	}
	return 0, false
}

// Symbols lists the symbols the configuration mentions, in order.
func (c Config) Symbols() []string {
	out := make([]string, len(c.lits))
	for i, l := range c.lits {
		out[i] = l.Symbol
	}
	return out
}

// Without drops any literal for symbol.
func (c Config) Without(symbol string) Config {
	out := make([]Literal, 0, len(c.lits))
	for _, l := range c.lits {
		if l.Symbol != symbol {
			out = append(out, l)
		}
	}
	return Config{lits: out}
}

// Validate checks that every literal names a symbol in symbols.
func (c Config) Validate(symbols []string) error {
	for _, l := range c.lits {
		if !slices.Contains(symbols, l.Symbol) {
			return fmt.Errorf("%w: unknown symbol %q in %q", ErrMalformed, l.Symbol, c.Key())
		}
	}
	return nil
}

// Complete reports whether c assigns every symbol in symbols.
func (c Config) Complete(symbols []string) bool {
	return c.Len() == len(symbols) && c.Validate(symbols) == nil
}
