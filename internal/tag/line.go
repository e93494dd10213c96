package tag

import "strings"

// Line is one line of text, newline included, with the configuration under
// which it is asserted to appear.
type Line struct {
	Text   string
	Config Config
}

func (l Line) String() string {
	return l.Config.String() + "\t" + l.Text
}

// Concat joins the text of a and b; the result carries the union of both
// configurations.
func Concat(a, b Line) Line {
	return Line{Text: a.Text + b.Text, Config: Union([]Config{a.Config, b.Config})}
}

// SplitLines cuts text after every '\n', keeping the terminator. A final
// line without one is kept as is.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Variant tags every line of text with the complete configuration cfg.
func Variant(text string, cfg Config) []Line {
	raw := SplitLines(text)
	out := make([]Line, len(raw))
	for i, s := range raw {
		out[i] = Line{Text: s, Config: cfg}
	}
	return out
}

// Texts returns the text of every line.
func Texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// Join concatenates the text of lines.
func Join(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
	}
	return b.String()
}
