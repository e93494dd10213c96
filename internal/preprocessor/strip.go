package preprocessor

import (
	"fmt"
	"strings"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

// StripOptions controls Strip.
type StripOptions struct {
	// Blank keeps a removed line as an empty line instead of dropping it.
	Blank bool
}

// stripScope resolves names against a partial assignment. Symbols outside
// the assignment stay unknown; a defined symbol reads as 1.
type stripScope struct {
	cfg tag.Config
}

func (s stripScope) defined(name string) value {
	pol, ok := s.cfg.Lookup(name)
	if !ok {
		return unknown
	}
	return boolValue(pol == tag.Defined)
}

func (s stripScope) ident(name string) value {
	return s.defined(name)
}

// StripString resolves the conditionals of src that depend only on symbols
// assigned by cfg and copies everything else through unchanged, like
// unifdef. A group whose condition cannot be decided keeps its directives,
// with any decidable #elif branches folded away. Lines are copied byte for
// byte, terminators included.
func StripString(src string, cfg tag.Config, opts StripOptions) (string, error) {
	s := stripper{
		scope: stripScope{cfg: cfg},
		opts:  opts,
		cond:  newCondStack(),
		lines: tag.SplitLines(src),
	}
	return s.run()
}

type action int

const (
	dropLine action = iota
	copyLine
	rewriteLine
)

type stripper struct {
	scope stripScope
	opts  StripOptions
	cond  *condStack
	lines []string
	out   strings.Builder
}

func (s *stripper) drop(n int) {
	if s.opts.Blank {
		s.out.WriteString(strings.Repeat("\n", n))
	}
}

func (s *stripper) run() (string, error) {
	for i := 0; i < len(s.lines); i++ {
		start := i
		line := s.lines[i]
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			if s.cond.Active() {
				s.out.WriteString(line)
			} else {
				s.drop(1)
			}
			continue
		}

		logical := strings.TrimRight(line, "\r\n")
		for strings.HasSuffix(logical, "\\") && i+1 < len(s.lines) {
			i++
			logical = logical[:len(logical)-1] + " " + strings.TrimRight(s.lines[i], "\r\n")
		}
		n := i - start + 1
		d := parseDirective(strings.TrimSpace(logical))

		act, text := copyLine, ""
		if isConditional(d.cmd) {
			var err error
			act, text, err = s.directive(d, start+1)
			if err != nil {
				return "", err
			}
		} else if !s.cond.Active() {
			act = dropLine
		}
		switch act {
		case copyLine:
			s.out.WriteString(strings.Join(s.lines[start:i+1], ""))
		case rewriteLine:
			s.out.WriteString(text)
			s.drop(n - 1)
		default:
			s.drop(n)
		}
	}
	if s.cond.Depth() != 0 {
		return "", fmt.Errorf("line %d: unclosed #if", s.cond.UnclosedLine())
	}
	return s.out.String(), nil
}

func (s *stripper) directive(d directive, lineNo int) (action, string, error) {
	switch d.cmd {
	case "ifdef", "ifndef", "if":
		if !s.cond.Active() {
			s.cond.Push(false, lineNo)
			return dropLine, "", nil
		}
		if v := s.eval(d); v.known {
			s.cond.Push(v.n != 0, lineNo)
			return dropLine, "", nil
		}
		s.cond.PushKept(lineNo)
		return copyLine, "", nil

	case "elif":
		top := s.cond.top()
		if top == nil {
			return 0, "", fmt.Errorf("line %d: #elif without #if", lineNo)
		}
		if !top.parentActive || (!top.kept && top.taken) || top.closed {
			top.active = false
			return dropLine, "", nil
		}
		v := s.eval(d)
		if !top.kept {
			if v.known {
				s.cond.Elif(v.n != 0)
				return dropLine, "", nil
			}
			// Every earlier branch was false: the remaining branches
			// survive under a fresh #if.
			top.kept = true
			top.active = true
			return rewriteLine, "#if " + d.arg + "\n", nil
		}
		switch {
		case !v.known:
			top.active = true
			return copyLine, "", nil
		case v.n != 0:
			top.active = true
			top.closed = true
			return rewriteLine, "#else\n", nil
		}
		top.active = false
		return dropLine, "", nil

	case "else":
		top := s.cond.top()
		if top == nil {
			return 0, "", fmt.Errorf("line %d: #else without #if", lineNo)
		}
		s.cond.Else()
		if top.kept && !top.closed && top.parentActive {
			return copyLine, "", nil
		}
		return dropLine, "", nil

	case "endif":
		f, ok := s.cond.Pop()
		if !ok {
			return 0, "", fmt.Errorf("line %d: #endif without #if", lineNo)
		}
		if f.kept && f.parentActive {
			return copyLine, "", nil
		}
		return dropLine, "", nil
	}
	return copyLine, "", nil
}

// eval decides a condition. An expression the evaluator cannot parse is
// left to whatever preprocessor runs later, the same as one that mentions
// unassigned symbols.
func (s *stripper) eval(d directive) value {
	switch d.cmd {
	case "ifdef":
		return s.scope.defined(symbolArg(d.arg))
	case "ifndef":
		v := s.scope.defined(symbolArg(d.arg))
		if !v.known {
			return unknown
		}
		return boolValue(v.n == 0)
	}
	v, err := evalExpr(d.arg, s.scope)
	if err != nil {
		return unknown
	}
	return v
}
