package preprocessor

import (
	"errors"
	"strings"
)

const maxExpansions = 100

var errRecursiveMacro = errors.New("recursive macro invocation")

// expandLineForProcess expands line; a line that is nothing but one macro
// invocation loses the leading newline a multi-line body starts with.
func (p *Preprocessor) expandLineForProcess(line string) (string, error) {
	core, sole := p.soleMacroInvocation(line)
	if !sole {
		return p.expandLine(line)
	}
	expanded, err := p.expandLine(core)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(expanded, "\n"), nil
}

func (p *Preprocessor) soleMacroInvocation(line string) (string, bool) {
	trim := strings.TrimSpace(stripLineComment(line))
	name, rest, ok := splitIdentPrefix(trim)
	if !ok {
		return "", false
	}
	if _, isFn := p.fn[name]; isFn {
		if !strings.HasPrefix(rest, "(") {
			return "", false
		}
		end, ok := scanParenEnd(rest)
		return trim, ok && strings.TrimSpace(rest[end:]) == ""
	}
	if _, isObj := p.obj[name]; isObj {
		return trim, strings.TrimSpace(rest) == ""
	}
	return "", false
}

func splitIdentPrefix(s string) (name string, rest string, ok bool) {
	if s == "" || !isIdentStart(s[0]) {
		return "", "", false
	}
	i := 1
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return s[:i], s[i:], true
}

// scanParenEnd returns the offset just past the ')' matching the '(' that
// s starts with, skipping quoted strings.
func scanParenEnd(s string) (int, bool) {
	if s == "" || s[0] != '(' {
		return 0, false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return i + 1, true
			}
		case '"', '\'':
			i = skipQuoted(s, i)
		}
	}
	return 0, false
}

// skipQuoted returns the index of the quote closing the string opened at i.
func skipQuoted(s string, i int) int {
	quote := s[i]
	for i++; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return i
}

func stripLineComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		return s[:i]
	}
	return s
}

// expandLine rewrites macros in line using a pushback stack of input
// chunks, the way the Go assembler does. At most maxExpansions rewrites are
// allowed per line.
func (p *Preprocessor) expandLine(line string) (string, error) {
	e := expander{p: p, stack: []inputChunk{{s: line}}}
	return e.expand()
}

type expander struct {
	p          *Preprocessor
	stack      []inputChunk
	expansions int
}

type inputChunk struct {
	s string
	i int
}

func (e *expander) expand() (string, error) {
	var b strings.Builder
	for {
		ch, ok := e.next()
		if !ok {
			return b.String(), nil
		}
		if e.copyOpaque(&b, ch) {
			continue
		}
		if !isIdentStart(ch) {
			b.WriteByte(ch)
			continue
		}
		name := e.readIdent(ch)
		if macro, ok := e.p.fn[name]; ok && e.peekIs('(') {
			e.next()
			if args, ok := e.readArgs(); ok {
				if err := e.push(applyFnMacro(macro, args)); err != nil {
					return "", err
				}
				continue
			}
		}
		if val, ok := e.p.obj[name]; ok {
			if err := e.push(val); err != nil {
				return "", err
			}
			continue
		}
		b.WriteString(name)
	}
}

// copyOpaque copies a string literal or comment starting with ch verbatim.
func (e *expander) copyOpaque(b *strings.Builder, ch byte) bool {
	switch {
	case ch == '"' || ch == '\'':
		b.WriteByte(ch)
		e.copyString(b, ch)
	case ch == '/' && e.peekIs('/'):
		b.WriteByte(ch)
		b.WriteByte(e.mustNext())
		e.copyUntil(b, func(c byte) bool { return c == '\n' })
	case ch == '/' && e.peekIs('*'):
		b.WriteByte(ch)
		b.WriteByte(e.mustNext())
		e.copyUntil(b, func(c byte) bool {
			if c == '*' && e.peekIs('/') {
				b.WriteByte(e.mustNext())
				return true
			}
			return false
		})
	default:
		return false
	}
	return true
}

func (e *expander) push(s string) error {
	e.expansions++
	if e.expansions > maxExpansions {
		return errRecursiveMacro
	}
	if s != "" {
		e.stack = append(e.stack, inputChunk{s: s})
	}
	return nil
}

func (e *expander) next() (byte, bool) {
	for len(e.stack) > 0 {
		top := &e.stack[len(e.stack)-1]
		if top.i >= len(top.s) {
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		ch := top.s[top.i]
		top.i++
		return ch, true
	}
	return 0, false
}

func (e *expander) mustNext() byte {
	ch, _ := e.next()
	return ch
}

func (e *expander) peekIs(b byte) bool {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if c := e.stack[i]; c.i < len(c.s) {
			return c.s[c.i] == b
		}
	}
	return false
}

func (e *expander) readIdent(first byte) string {
	var b strings.Builder
	b.WriteByte(first)
	for {
		ch, ok := e.peekByte()
		if !ok || !isIdentPart(ch) {
			return b.String()
		}
		e.next()
		b.WriteByte(ch)
	}
}

func (e *expander) peekByte() (byte, bool) {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if c := e.stack[i]; c.i < len(c.s) {
			return c.s[c.i], true
		}
	}
	return 0, false
}

// readArgs reads a comma separated argument list up to the ')' matching an
// already consumed '('.
func (e *expander) readArgs() ([]string, bool) {
	var args []string
	var cur strings.Builder
	depth := 1
	for {
		ch, ok := e.next()
		if !ok {
			return nil, false
		}
		if e.copyOpaque(&cur, ch) {
			continue
		}
		switch {
		case ch == '(':
			depth++
		case ch == ')':
			if depth--; depth == 0 {
				return append(args, strings.TrimSpace(cur.String())), true
			}
		case ch == ',' && depth == 1:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
}

func (e *expander) copyString(b *strings.Builder, quote byte) {
	for {
		ch, ok := e.next()
		if !ok {
			return
		}
		b.WriteByte(ch)
		if ch == '\\' {
			if next, ok := e.next(); ok {
				b.WriteByte(next)
			}
			continue
		}
		if ch == quote {
			return
		}
	}
}

func (e *expander) copyUntil(b *strings.Builder, stop func(byte) bool) {
	for {
		ch, ok := e.next()
		if !ok {
			return
		}
		b.WriteByte(ch)
		if stop(ch) {
			return
		}
	}
}

func applyFnMacro(m FnMacro, args []string) string {
	argMap := make(map[string]string, len(m.Params))
	for i, p := range m.Params {
		if i < len(args) {
			argMap[p] = args[i]
		} else {
			argMap[p] = ""
		}
	}
	return replaceIdents(m.Body, argMap)
}

// replaceIdents substitutes parameter names in a macro body, leaving string
// literals and comments alone.
func replaceIdents(s string, repl map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '"' || ch == '\'':
			end := min(skipQuoted(s, i)+1, len(s))
			b.WriteString(s[i:end])
			i = end
		case strings.HasPrefix(s[i:], "//"):
			b.WriteString(s[i:])
			i = len(s)
		case strings.HasPrefix(s[i:], "/*"):
			end := len(s)
			if j := strings.Index(s[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
			b.WriteString(s[i:end])
			i = end
		case isIdentStart(ch):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			if val, ok := repl[s[i:j]]; ok {
				b.WriteString(val)
			} else {
				b.WriteString(s[i:j])
			}
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String()
}
