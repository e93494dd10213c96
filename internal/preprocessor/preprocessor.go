// Package preprocessor expands conditional compilation documents. It is the
// forward direction of the merge: given a document and an assignment of its
// symbols it produces the text a C-style preprocessor would emit.
package preprocessor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

// ---------------- Preprocessor ----------------

// Preprocessor is a full macro preprocessor: object and function macros,
// #include, and #if expressions. It is not safe for concurrent use.
type Preprocessor struct {
	IncludeDirs []string
	// BlankDirectives replaces every directive line and every skipped line
	// with an empty line so output line numbers match the input.
	BlankDirectives bool

	obj               map[string]string
	fn                map[string]FnMacro
	includeStackGuard map[string]bool
}

type FnMacro struct {
	Params []string
	Body   string
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		obj:               map[string]string{},
		fn:                map[string]FnMacro{},
		includeStackGuard: map[string]bool{},
	}
}

func (p *Preprocessor) DefineObject(name, value string) {
	p.obj[name] = value
}

func (p *Preprocessor) DefineFunc(name string, params []string, body string) {
	p.fn[name] = FnMacro{Params: params, Body: body}
}

func (p *Preprocessor) Undefine(name string) {
	delete(p.obj, name)
	delete(p.fn, name)
}

// Assign defines every symbol cfg marks defined and undefines the rest.
func (p *Preprocessor) Assign(cfg tag.Config) {
	for _, l := range cfg.Literals() {
		if l.Polarity == tag.Defined {
			p.DefineObject(l.Symbol, "1")
		} else {
			p.Undefine(l.Symbol)
		}
	}
}

func (p *Preprocessor) isDefined(name string) bool {
	_, ok1 := p.obj[name]
	_, ok2 := p.fn[name]
	return ok1 || ok2
}

func (p *Preprocessor) defined(name string) value {
	return boolValue(p.isDefined(name))
}

// ident evaluates a bare name: an object macro with a numeric body yields
// that number, any other defined name yields 1 unless its body is empty,
// and an undefined name yields 0.
func (p *Preprocessor) ident(name string) value {
	body, ok := p.obj[name]
	if !ok {
		return known(0)
	}
	body = strings.TrimSpace(body)
	if n, err := parseNumber(body); err == nil {
		return known(n)
	}
	return boolValue(body != "")
}

// Process preprocesses r and writes the expanded text to w.
func (p *Preprocessor) Process(filename string, r io.Reader, w io.Writer) error {
	if abs, err := p.resolveAsFile(filename, ""); err == nil {
		filename = abs
	}
	if p.includeStackGuard[filename] {
		return fmt.Errorf("include cycle detected at %q", filename)
	}
	p.includeStackGuard[filename] = true
	defer delete(p.includeStackGuard, filename)

	var out bytes.Buffer
	lr := newLineReader(r)
	cond := newCondStack()

	for {
		line, lineNo, ok, err := lr.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			if first := firstNonSpaceIndex(line); first >= 0 && idx > first && isDirectivePrefix(strings.TrimSpace(line[idx:])) {
				return fmt.Errorf("%s:%d: '#' must be first item on line", shortPath(filename), lineNo)
			}
		}

		trim := strings.TrimSpace(line)
		if strings.HasPrefix(trim, "#") {
			full, lastNo, err := lr.readDirective(line, lineNo)
			if err != nil {
				return err
			}
			d := parseDirective(strings.TrimSpace(full))
			if d.cmd == "define" && lr.unterminated() {
				if _, _, body, ok := parseDefineDirective(d.arg); ok && strings.TrimSpace(body) != "" {
					return fmt.Errorf("%s:%d: no newline after macro definition", shortPath(filename), lineNo)
				}
			}
			if err := p.handleDirective(&out, filename, lineNo, d, cond); err != nil {
				return err
			}
			if p.BlankDirectives && d.cmd != "include" {
				out.WriteString(strings.Repeat("\n", lastNo-lineNo+1))
			}
			continue
		}

		if !cond.Active() {
			if p.BlankDirectives {
				out.WriteByte('\n')
			}
			continue
		}

		expanded, err := p.expandLineForProcess(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", shortPath(filename), lineNo, err)
		}
		out.WriteString(expanded)
		if !strings.HasSuffix(expanded, "\n") {
			out.WriteByte('\n')
		}
	}

	if cond.Depth() != 0 {
		return fmt.Errorf("%s:%d: unclosed #ifdef or #ifndef", shortPath(filename), cond.UnclosedLine())
	}
	_, err := w.Write(out.Bytes())
	return err
}

func (p *Preprocessor) handleDirective(out *bytes.Buffer, filename string, lineNo int, d directive, cond *condStack) error {
	where := fmt.Sprintf("%s:%d", shortPath(filename), lineNo)
	switch d.cmd {
	case "include":
		if !cond.Active() {
			return nil
		}
		path, ok := parseIncludeArg(d.arg)
		if !ok {
			return fmt.Errorf("%s: bad #include syntax: %q", where, d.arg)
		}
		bs, resolved, err := p.readInclude(path, filename)
		if err != nil {
			return fmt.Errorf("%s: include %q: %w", where, path, err)
		}
		return p.Process(resolved, bytes.NewReader(bs), out)

	case "define":
		if !cond.Active() {
			return nil
		}
		name, params, body, ok := parseDefineDirective(d.arg)
		if !ok {
			return fmt.Errorf("%s: bad #define: %q", where, d.arg)
		}
		if p.isDefined(name) {
			return fmt.Errorf("%s: redefinition of macro", where)
		}
		if params == nil {
			p.DefineObject(name, body)
		} else {
			p.DefineFunc(name, params, body)
		}

	case "undef":
		if cond.Active() {
			p.Undefine(symbolArg(d.arg))
		}

	case "ifdef", "ifndef":
		if !cond.Active() {
			cond.Push(false, lineNo)
			return nil
		}
		defined := p.isDefined(symbolArg(d.arg))
		cond.Push(defined == (d.cmd == "ifdef"), lineNo)

	case "if":
		if !cond.Active() {
			cond.Push(false, lineNo)
			return nil
		}
		v, err := evalExpr(d.arg, p)
		if err != nil {
			return fmt.Errorf("%s: #if: %w", where, err)
		}
		cond.Push(v.n != 0, lineNo)

	case "elif":
		top := cond.top()
		if top == nil {
			return fmt.Errorf("%s: #elif without #if", where)
		}
		if !top.parentActive || top.taken {
			cond.Elif(false)
			return nil
		}
		v, err := evalExpr(d.arg, p)
		if err != nil {
			return fmt.Errorf("%s: #elif: %w", where, err)
		}
		cond.Elif(v.n != 0)

	case "else":
		if cond.Depth() == 0 {
			return fmt.Errorf("%s: #else without #if", where)
		}
		cond.Else()

	case "endif":
		if _, ok := cond.Pop(); !ok {
			return fmt.Errorf("%s: #endif without #if", where)
		}

	default:
		// Unknown directives only matter on live lines.
		if cond.Active() {
			return fmt.Errorf("%s: unknown directive %q", where, d.cmd)
		}
	}
	return nil
}

func parseIncludeArg(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if len(arg) < 2 {
		return "", false
	}
	if (arg[0] == '"' && arg[len(arg)-1] == '"') || (arg[0] == '<' && arg[len(arg)-1] == '>') {
		return arg[1 : len(arg)-1], true
	}
	return "", false
}

// parseDefineDirective splits "NAME body" or "NAME(a, b) body". The macro is
// function-like only when '(' immediately follows the name; params is nil
// for object-like macros.
func parseDefineDirective(arg string) (name string, params []string, body string, ok bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" || !isIdentStart(arg[0]) {
		return "", nil, "", false
	}
	i := 1
	for i < len(arg) && isIdentPart(arg[i]) {
		i++
	}
	name, rest := arg[:i], arg[i:]

	if !strings.HasPrefix(rest, "(") {
		return name, nil, strings.TrimLeft(rest, " \t"), true
	}
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return "", nil, "", false
	}
	body = strings.TrimLeft(rest[j+1:], " \t")
	params = []string{}
	if raw := strings.TrimSpace(rest[1:j]); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			params = append(params, strings.TrimSpace(p))
		}
	}
	return name, params, body, true
}

// ParseDefine splits a command line "NAME=value"; a bare NAME gets "1".
func ParseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}

// ---------------- Include resolution ----------------

func (p *Preprocessor) readInclude(path string, includingFile string) ([]byte, string, error) {
	resolved, err := p.resolveAsFile(path, includingFile)
	if err != nil {
		return nil, "", err
	}
	bs, err := os.ReadFile(resolved)
	return bs, resolved, err
}

func (p *Preprocessor) resolveAsFile(path string, includingFile string) (string, error) {
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return filepath.Clean(path), nil
		}
		return "", os.ErrNotExist
	}

	candidates := make([]string, 0, len(p.IncludeDirs)+1)
	if includingFile != "" && includingFile != "<stdin>" {
		candidates = append(candidates, filepath.Join(filepath.Dir(includingFile), path))
	}
	for _, dir := range p.IncludeDirs {
		candidates = append(candidates, filepath.Join(dir, path))
	}
	for _, cand := range candidates {
		if fileExists(cand) {
			return filepath.Clean(cand), nil
		}
	}
	return "", fmt.Errorf("cannot resolve include %q", path)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func shortPath(p string) string {
	if p == "" {
		return p
	}
	return filepath.Base(p)
}
