package preprocessor

import (
	"bufio"
	"io"
	"strings"
)

type lineReader struct {
	r         *bufio.Reader
	lastHasNL bool
	pending   []pendingLine
	lineNo    int
}

type pendingLine struct {
	text string
	no   int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// next returns the following line without its terminator. ok is false at
// end of input.
func (lr *lineReader) next() (line string, no int, ok bool, err error) {
	if n := len(lr.pending); n > 0 {
		p := lr.pending[n-1]
		lr.pending = lr.pending[:n-1]
		return p.text, p.no, true, nil
	}
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", 0, false, err
	}
	if s == "" {
		return "", 0, false, nil
	}
	lr.lastHasNL = strings.HasSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	lr.lineNo++
	return s, lr.lineNo, true, nil
}

// unterminated reports whether the last line handed out ended the input
// without a newline.
func (lr *lineReader) unterminated() bool {
	return len(lr.pending) == 0 && !lr.lastHasNL
}

func (lr *lineReader) unread(line string, no int) {
	lr.pending = append(lr.pending, pendingLine{text: line, no: no})
}

// readDirective gathers a directive spread over backslash continued lines.
// A continuation line must be indented; otherwise it is pushed back and the
// directive ends. Continued parts are joined with '\n'.
func (lr *lineReader) readDirective(first string, firstNo int) (full string, lastNo int, err error) {
	line, no := first, firstNo
	var b strings.Builder
	for lineContinues(line) {
		b.WriteString(stripLineContinuation(line))
		next, nextNo, ok, err := lr.next()
		if err != nil {
			return "", 0, err
		}
		if !ok {
			return b.String(), no, nil
		}
		if !isContinuationLine(next) {
			lr.unread(next, nextNo)
			return b.String(), no, nil
		}
		b.WriteByte('\n')
		line, no = next, nextNo
	}
	b.WriteString(line)
	return b.String(), no, nil
}

func lineContinues(s string) bool {
	s = strings.TrimRight(s, " \t")
	return strings.HasSuffix(s, "\\")
}

func stripLineContinuation(s string) string {
	s = strings.TrimRight(s, " \t")
	if strings.HasSuffix(s, "\\") {
		return strings.TrimRight(s[:len(s)-1], " \t")
	}
	return s
}

func isContinuationLine(s string) bool {
	return s != "" && (s[0] == ' ' || s[0] == '\t')
}

func firstNonSpaceIndex(s string) int {
	return strings.IndexFunc(s, func(r rune) bool { return r != ' ' && r != '\t' })
}

// directive is a parsed "#cmd arg" line.
type directive struct {
	cmd string
	arg string
}

func parseDirective(trim string) directive {
	trim = strings.TrimSpace(strings.TrimPrefix(trim, "#"))
	if trim == "" {
		return directive{}
	}
	end := 0
	for end < len(trim) && isIdentPart(trim[end]) {
		end++
	}
	return directive{cmd: trim[:end], arg: strings.TrimSpace(trim[end:])}
}

func isConditional(cmd string) bool {
	switch cmd {
	case "if", "ifdef", "ifndef", "elif", "else", "endif":
		return true
	}
	return false
}

func isKnownDirective(cmd string) bool {
	return isConditional(cmd) || cmd == "include" || cmd == "define" || cmd == "undef"
}

// isDirectivePrefix reports whether s (starting at '#') reads as a
// directive the preprocessor knows.
func isDirectivePrefix(s string) bool {
	if !strings.HasPrefix(s, "#") {
		return false
	}
	return isKnownDirective(parseDirective(s).cmd)
}

// stripComments removes /* */ and // comments from a directive argument.
func stripComments(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '/' && i+1 < len(s) {
			if s[i+1] == '/' {
				break
			}
			if s[i+1] == '*' {
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					break
				}
				b.WriteByte(' ')
				i += end + 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return strings.TrimSpace(b.String())
}

// symbolArg returns the identifier an #ifdef/#ifndef tests.
func symbolArg(arg string) string {
	f := strings.Fields(stripComments(arg))
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}
