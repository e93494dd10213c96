package preprocessor

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

func TestStrip(t *testing.T) {
	for _, tt := range []struct {
		name  string
		key   string
		input string
		want  string
	}{
		{
			"ifdef taken",
			"-DA",
			lines("top", "#ifdef A", "a", "#else", "not a", "#endif", "bottom"),
			lines("top", "a", "bottom"),
		},
		{
			"ifdef not taken",
			"-UA",
			lines("top", "#ifdef A", "a", "#else", "not a", "#endif", "bottom"),
			lines("top", "not a", "bottom"),
		},
		{
			"ifndef",
			"-UA",
			lines("#ifndef A", "x", "#endif /* -UA */"),
			lines("x"),
		},
		{
			"conjunction",
			"-DA -UB",
			lines("#if defined(A) && !defined(B)", "ab", "#endif", "#if defined(A) && defined(B)", "no", "#endif"),
			lines("ab"),
		},
		{
			"unknown symbol is kept",
			"-DA",
			lines("#ifdef OTHER", "o", "#ifdef A", "a", "#endif", "#else", "p", "#endif"),
			lines("#ifdef OTHER", "o", "a", "#else", "p", "#endif"),
		},
		{
			"short circuit over unknown",
			"-UA",
			lines("#if defined(A) && defined(OTHER)", "x", "#else", "y", "#endif"),
			lines("y"),
		},
		{
			"elif becomes if",
			"-UA",
			lines("#ifdef A", "a", "#elif defined(OTHER)", "o", "#else", "z", "#endif"),
			lines("#if defined(OTHER)", "o", "#else", "z", "#endif"),
		},
		{
			"elif true in kept group becomes else",
			"-DA",
			lines("#ifdef OTHER", "o", "#elif defined(A)", "a", "#else", "z", "#endif"),
			lines("#ifdef OTHER", "o", "#else", "a", "#endif"),
		},
		{
			"elif false in kept group is dropped",
			"-UA",
			lines("#ifdef OTHER", "o", "#elif defined(A)", "a", "#else", "z", "#endif"),
			lines("#ifdef OTHER", "o", "#else", "z", "#endif"),
		},
		{
			"other directives pass",
			"-DA",
			lines("#include <stdio.h>", "#define X 1", "#ifndef A", "#define Y 2", "#endif"),
			lines("#include <stdio.h>", "#define X 1"),
		},
		{
			"unparseable expression is kept",
			"-DA",
			lines("#if __GNUC__ ? 1 : 0", "g", "#endif"),
			lines("#if __GNUC__ ? 1 : 0", "g", "#endif"),
		},
		{
			"continued directive",
			"-DA -DB",
			lines("#if defined(A) && \\", "    defined(B)", "ab", "#endif"),
			lines("ab"),
		},
		{
			"crlf kept",
			"-DA",
			"#ifdef A\r\nx\r\n#endif\r\n",
			"x\r\n",
		},
		{
			"no trailing newline",
			"-DA",
			"#ifdef A\nx\n#endif\ny",
			"x\ny",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tag.Parse(tt.key)
			if err != nil {
				t.Fatal(err)
			}
			got, err := StripString(tt.input, cfg, StripOptions{})
			if err != nil {
				t.Fatalf("strip error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStripBlank(t *testing.T) {
	cfg := tag.MustNew(tag.U("A"))
	got, err := StripString(lines("x", "#ifdef A", "a", "#endif", "y"), cfg, StripOptions{Blank: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(lines("x", "", "", "", "y"), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStripErrors(t *testing.T) {
	cfg := tag.MustNew(tag.D("A"))
	for _, input := range []string{
		"#ifdef A\nx\n",
		"#endif\n",
		"#else\n",
		"#elif A\n",
	} {
		if _, err := StripString(input, cfg, StripOptions{}); err == nil {
			t.Errorf("%q: expected error", input)
		}
	}
}

func TestSymbols(t *testing.T) {
	src := lines(
		"#ifdef WITH_THREADS",
		"#endif",
		"#ifndef NDEBUG /* debug */",
		"#endif",
		"#if defined(HAVE_A) && !defined HAVE_B || VERSION > 2",
		"#elif defined(HAVE_C)",
		"#endif",
		"#define NOT_A_TEST 1",
		"# comment-like line",
		"#if defined(SPLIT) && \\",
		"    defined(JOINED)",
		"#endif",
	)
	want := []string{"HAVE_A", "HAVE_B", "HAVE_C", "JOINED", "NDEBUG", "SPLIT", "VERSION", "WITH_THREADS"}
	got, err := SymbolsString(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got, err := SymbolsString("plain\ntext\n"); err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want none", got, err)
	}
}

func TestSymbolsLongLine(t *testing.T) {
	src := "#ifdef A\n" + strings.Repeat("x", 17<<20) + "\n#endif\n#ifdef B\n#endif\n"
	got, err := SymbolsString(src)
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("SymbolsString = %v, %v; want %v", got, err, bufio.ErrTooLong)
	}
}

type mapScope map[string]int64

func (m mapScope) defined(name string) value {
	_, ok := m[name]
	return boolValue(ok)
}

func (m mapScope) ident(name string) value {
	return known(m[name])
}

func TestEvalExpr(t *testing.T) {
	sc := mapScope{"A": 1, "TWO": 2}
	for _, tt := range []struct {
		expr string
		want int64
	}{
		{"1", 1},
		{"0", 0},
		{"defined(A)", 1},
		{"defined A", 1},
		{"!defined(B)", 1},
		{"defined(A) && defined(B)", 0},
		{"defined(A) || defined(B)", 1},
		{"TWO * 3 + 1 == 7", 1},
		{"(TWO - 1) % 2", 1},
		{"-TWO < 0", 1},
		{"0x10 >= 16L", 1},
		{"UNSET", 0},
	} {
		v, err := evalExpr(tt.expr, sc)
		if err != nil {
			t.Errorf("%q: %v", tt.expr, err)
			continue
		}
		if !v.known || v.n != tt.want {
			t.Errorf("%q = %+v; want %d", tt.expr, v, tt.want)
		}
	}
	for _, bad := range []string{"", "(", "defined(", "1 +", "1 / 0", "a ? b : c"} {
		if _, err := evalExpr(bad, sc); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestEvalExprUnknown(t *testing.T) {
	sc := stripScope{cfg: tag.MustNew(tag.D("A"), tag.U("B"))}
	for _, tt := range []struct {
		expr  string
		known bool
		want  int64
	}{
		{"defined(C)", false, 0},
		{"defined(A) || defined(C)", true, 1},
		{"defined(B) && defined(C)", true, 0},
		{"defined(A) && defined(C)", false, 0},
		{"!defined(C)", false, 0},
		{"A", true, 1},
		{"B", true, 0},
	} {
		v, err := evalExpr(tt.expr, sc)
		if err != nil {
			t.Fatalf("%q: %v", tt.expr, err)
		}
		if v.known != tt.known || (v.known && v.n != tt.want) {
			t.Errorf("%q = %+v; want known=%v n=%d", tt.expr, v, tt.known, tt.want)
		}
	}
}
