package preprocessor

import (
	"bufio"
	"io"
	"slices"
	"strings"
)

// Symbols lists, sorted and without duplicates, every name the
// conditionals of r test: the argument of #ifdef and #ifndef and each
// identifier of an #if or #elif expression.
func Symbols(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	seen := map[string]bool{}
	var cont string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if cont != "" {
			line = cont + " " + line
			cont = ""
		}
		trim := strings.TrimSpace(line)
		if !strings.HasPrefix(trim, "#") {
			continue
		}
		if strings.HasSuffix(trim, "\\") {
			cont = strings.TrimSuffix(trim, "\\")
			continue
		}
		d := parseDirective(trim)
		switch d.cmd {
		case "ifdef", "ifndef":
			if s := symbolArg(d.arg); s != "" {
				seen[s] = true
			}
		case "if", "elif":
			for _, s := range exprIdents(d.arg) {
				seen[s] = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}

// SymbolsString is Symbols over a string.
func SymbolsString(src string) ([]string, error) {
	return Symbols(strings.NewReader(src))
}
