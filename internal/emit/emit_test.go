package emit

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

func lines(a ...string) string {
	return strings.Join(a, "\n") + "\n"
}

func tagged(t *testing.T, pairs ...string) []tag.Line {
	t.Helper()
	var out []tag.Line
	for i := 0; i+1 < len(pairs); i += 2 {
		c, err := tag.Parse(pairs[i+1])
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, tag.Line{Text: pairs[i], Config: c})
	}
	return out
}

func TestOpen(t *testing.T) {
	for _, tt := range []struct {
		key, want string
	}{
		{"-Dhello", "#ifdef hello"},
		{"-Uhello", "#ifndef hello"},
		{"-Da -Ub", "#if defined(a) && !defined(b)"},
		{"-Ub -Uc -Da", "#if defined(a) && !defined(b) && !defined(c)"},
	} {
		c, err := tag.Parse(tt.key)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, Open(c)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestEmit(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input []string
		want  string
		stats Stats
	}{
		{
			"empty",
			nil,
			"",
			Stats{},
		},
		{
			"unguarded",
			[]string{"a\n", "", "b\n", ""},
			"a\nb\n",
			Stats{Lines: 2, Text: 2},
		},
		{
			"hello world",
			[]string{
				"hello\n", "-Dhello",
				"goodbye\n", "-Uhello",
				"world\n", "-Dworld",
				"everyone\n", "-Uworld",
			},
			lines(
				"#ifdef hello",
				"hello",
				"#else",
				"goodbye",
				"#endif /* -Uhello */",
				"#ifdef world",
				"world",
				"#else",
				"everyone",
				"#endif /* -Uworld */",
			),
			Stats{Lines: 10, Text: 4, Directives: 6, Blocks: 2, Elses: 2},
		},
		{
			"ifndef then common",
			[]string{
				"x\n", "-Ua",
				"y\n", "-Ua",
				"z\n", "",
			},
			lines(
				"#ifndef a",
				"x",
				"y",
				"#endif /* -Ua */",
				"z",
			),
			Stats{Lines: 5, Text: 3, Directives: 2, Blocks: 1},
		},
		{
			"conjunction has no else",
			[]string{
				"p\n", "-Da -Db",
				"q\n", "-Da -Ub",
			},
			lines(
				"#if defined(a) && defined(b)",
				"p",
				"#endif /* -Da -Db */",
				"#if defined(a) && !defined(b)",
				"q",
				"#endif /* -Da -Ub */",
			),
			Stats{Lines: 6, Text: 2, Directives: 4, Blocks: 2},
		},
		{
			"different symbols do not pair",
			[]string{
				"p\n", "-Da",
				"q\n", "-Ub",
			},
			lines(
				"#ifdef a",
				"p",
				"#endif /* -Da */",
				"#ifndef b",
				"q",
				"#endif /* -Ub */",
			),
			Stats{Lines: 6, Text: 2, Directives: 4, Blocks: 2},
		},
		{
			"unterminated last line",
			[]string{"p", "-Da"},
			lines(
				"#ifdef a",
				"p",
				"#endif /* -Da */",
			),
			Stats{Lines: 3, Text: 1, Directives: 2, Blocks: 1},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, st, err := String(tagged(t, tt.input...))
			if err != nil {
				t.Fatalf("emit error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.stats, st); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errWrite }

var errWrite = errors.New("write failed")

func TestEmitWriteError(t *testing.T) {
	if _, err := Emit(failWriter{}, tagged(t, "a\n", "")); !errors.Is(err, errWrite) {
		t.Fatalf("got %v; want %v", err, errWrite)
	}
}
