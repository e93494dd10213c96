package tag

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		input string
		key   string
	}{
		{"", ""},
		{"-Dhello", "-Dhello"},
		{"-Uworld -Dhello", "-Dhello -Uworld"},
		{"-Dhello  -Dhello", "-Dhello"},
	} {
		t.Run(tt.input, func(t *testing.T) {
			c, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if diff := cmp.Diff(tt.key, c.Key()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{
		"-Dhello -Uhello",
		"-X",
		"hello",
		"-Q hello",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("got %v; want ErrMalformed", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	c := MustNew(D("a"), U("b"))
	if err := c.Validate([]string{"a", "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.Validate([]string{"a"}); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v; want ErrMalformed", err)
	}
	if !c.Complete([]string{"a", "b"}) {
		t.Error("expected complete")
	}
	if c.Complete([]string{"a", "b", "c"}) {
		t.Error("expected partial")
	}
}

func TestCompact(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   []Literal
		want string
	}{
		{"empty", nil, ""},
		{"single", []Literal{D("a")}, "-Da"},
		{"pair cancels", []Literal{D("a"), U("a")}, ""},
		{"pair cancels others stay", []Literal{D("a"), D("b"), U("a"), U("c")}, "-Db -Uc"},
		{"duplicates", []Literal{D("b"), D("b"), U("a")}, "-Ua -Db"},
		{"repeated both ways", []Literal{D("a"), U("a"), D("a")}, ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := Compact(tt.in)
			if diff := cmp.Diff(tt.want, got.Key()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			again := Compact(got.Literals())
			if !again.Equal(got) {
				t.Errorf("not idempotent: %q then %q", got, again)
			}
			rev := make([]Literal, len(tt.in))
			for i := range tt.in {
				rev[len(rev)-1-i] = tt.in[i]
			}
			if !Compact(rev).Equal(got) {
				t.Errorf("order dependent: %q vs %q", Compact(rev), got)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	a := MustNew(D("hello"), D("world"))
	b := MustNew(D("hello"), U("world"))
	got := Union([]Config{a, b})
	if diff := cmp.Diff("-Dhello", got.Key()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	got = Union([]Config{MustNew(D("hello"))}, U("hello"), D("x"))
	if diff := cmp.Diff("-Dx", got.Key()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestComplementary(t *testing.T) {
	for _, tt := range []struct {
		a, b string
		want bool
	}{
		{"-Da", "-Ua", true},
		{"-Ua", "-Da", true},
		{"-Da", "-Da", false},
		{"-Da", "-Ub", false},
		{"", "-Da", false},
		{"-Da -Db", "-Ua -Db", false},
	} {
		got := Complementary(mustParse(t, tt.a), mustParse(t, tt.b))
		if got != tt.want {
			t.Errorf("Complementary(%q, %q) = %v; want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSiblings(t *testing.T) {
	for _, tt := range []struct {
		a, b   string
		symbol string
		ok     bool
	}{
		{"-Da -Db", "-Da -Ub", "b", true},
		{"-Da -Db", "-Ua -Db", "a", true},
		{"-Da", "-Ua", "a", true},
		{"-Da -Db", "-Ua -Ub", "", false},
		{"-Da -Db", "-Da -Db", "", false},
		{"-Da -Db", "-Da", "", false},
		{"-Da -Db", "-Da -Dc", "", false},
	} {
		symbol, ok := Siblings(mustParse(t, tt.a), mustParse(t, tt.b))
		if ok != tt.ok || symbol != tt.symbol {
			t.Errorf("Siblings(%q, %q) = %q, %v; want %q, %v", tt.a, tt.b, symbol, ok, tt.symbol, tt.ok)
		}
	}
}

func TestConcat(t *testing.T) {
	a := Line{Text: "/* x ", Config: MustNew(D("a"))}
	b := Line{Text: "y */\n", Config: MustNew(D("a"), U("b"))}
	got := Concat(a, b)
	if got.Text != "/* x y */\n" {
		t.Errorf("text = %q", got.Text)
	}
	if diff := cmp.Diff("-Da -Ub", got.Config.Key()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitLines(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a\n", []string{"a\n"}},
		{"a\nb", []string{"a\n", "b"}},
		{"a\n\nb\n", []string{"a\n", "\n", "b\n"}},
	} {
		if diff := cmp.Diff(tt.want, SplitLines(tt.in)); diff != "" {
			t.Errorf("SplitLines(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func mustParse(t *testing.T, key string) Config {
	t.Helper()
	c, err := Parse(key)
	if err != nil {
		t.Fatalf("parse %q: %v", key, err)
	}
	return c
}
