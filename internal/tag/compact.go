package tag

import "slices"

// Compact turns a bag of literals into a configuration, discarding every
// symbol that appears with both polarities. Applying it to its own result
// changes nothing, and the order of lits does not matter.
func Compact(lits []Literal) Config {
	seen := make(map[string]uint8, len(lits))
	for _, l := range lits {
		seen[l.Symbol] |= 1 << l.Polarity
	}
	out := make([]Literal, 0, len(seen))
	for sym, mask := range seen {
		switch mask {
		case 1 << Defined:
			out = append(out, D(sym))
		case 1 << Undefined:
			out = append(out, U(sym))
		}
	}
	slices.SortFunc(out, compareLiterals)
	return Config{lits: out}
}

// Union joins configurations and extra literals, then compacts the result.
// A symbol asserted both ways across the inputs drops out entirely.
func Union(cfgs []Config, extra ...Literal) Config {
	n := len(extra)
	for _, c := range cfgs {
		n += len(c.lits)
	}
	bag := make([]Literal, 0, n)
	for _, c := range cfgs {
		bag = append(bag, c.lits...)
	}
	bag = append(bag, extra...)
	return Compact(bag)
}

// Complementary reports whether a and b are single literals over the same
// symbol with opposite polarity, the only shape the emitter turns into #else.
func Complementary(a, b Config) bool {
	if a.Len() != 1 || b.Len() != 1 {
		return false
	}
	return a.lits[0].Complement() == b.lits[0]
}

// Siblings reports whether a and b differ in exactly one literal and that
// literal is complementary, returning the symbol they differ on.
func Siblings(a, b Config) (string, bool) {
	if a.Len() != b.Len() {
		return "", false
	}
	var symbol string
	diffs := 0
	for i := range a.lits {
		la, lb := a.lits[i], b.lits[i]
		if la == lb {
			continue
		}
		if la.Complement() != lb {
			return "", false
		}
		symbol = la.Symbol
		diffs++
	}
	if diffs != 1 {
		return "", false
	}
	return symbol, true
}
