// Package comments makes multi-line block comments diff as one unit. A
// comment opened by a line starting with "/* " and not closed on that line
// is joined with its continuation lines; the newlines between them are
// replaced by a token that cannot occur in the document, and restored by
// Unfold once the merge is done.
package comments

import (
	"strings"

	"github.com/google/uuid"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

// Folder carries the newline token for one run.
type Folder struct {
	token string
}

// New returns a Folder with a fresh random token.
func New() Folder {
	id := uuid.New()
	return WithToken(" " + strings.ReplaceAll(id.String(), "-", "") + " ")
}

// WithToken returns a Folder using token. Tests use it for stable output.
func WithToken(token string) Folder {
	return Folder{token: token}
}

func (f Folder) Token() string { return f.token }

// opens reports whether line starts a block comment it does not close.
func opens(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "/* ") && !strings.Contains(line, "*/")
}

// Fold rewrites text so every multi-line block comment is a single line.
func (f Folder) Fold(text string) string {
	var b strings.Builder
	in := false
	for _, line := range tag.SplitLines(text) {
		switch {
		case in && strings.Contains(line, "*/"):
			in = false
		case in, opens(line):
			in = true
			line = strings.Replace(line, "\n", f.token, 1)
		}
		b.WriteString(line)
	}
	return b.String()
}

// FoldLines is Fold over tagged lines. Joined lines carry the union of their
// configurations.
func (f Folder) FoldLines(lines []tag.Line) []tag.Line {
	out := make([]tag.Line, 0, len(lines))
	in := false
	for _, l := range lines {
		joining := in
		switch {
		case in && strings.Contains(l.Text, "*/"):
			in = false
		case in, opens(l.Text):
			in = true
		}
		if joining {
			out[len(out)-1] = tag.Concat(out[len(out)-1], l)
		} else {
			out = append(out, l)
		}
		if in {
			last := &out[len(out)-1]
			last.Text = strings.Replace(last.Text, "\n", f.token, 1)
		}
	}
	return out
}

// Unfold restores the newlines Fold replaced.
func (f Folder) Unfold(text string) string {
	if f.token == "" {
		return text
	}
	return strings.ReplaceAll(text, f.token, "\n")
}
