package reconcile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fwessels/ifdef-merge/internal/tag"
)

type pair struct {
	Text string
	Key  string
}

func flatten(lines []tag.Line) []pair {
	out := make([]pair, len(lines))
	for i, l := range lines {
		out[i] = pair{l.Text, l.Config.Key()}
	}
	return out
}

func side(text string, lit tag.Literal, rest ...tag.Literal) Side {
	cfg := tag.MustNew(append([]tag.Literal{lit}, rest...)...)
	return Side{Lines: tag.Variant(text, cfg), Literal: lit}
}

func TestMerge(t *testing.T) {
	for _, tt := range []struct {
		name string
		a, b string
		want []pair
	}{
		{
			"identical",
			"one\ntwo\n",
			"one\ntwo\n",
			[]pair{{"one\n", "-Dy"}, {"two\n", "-Dy"}},
		},
		{
			"replace",
			"hello\nworld\n",
			"hello\neveryone\n",
			[]pair{{"hello\n", "-Dy"}, {"world\n", "-Dx -Dy"}, {"everyone\n", "-Ux -Dy"}},
		},
		{
			"delete",
			"a\nb\nc\n",
			"a\nc\n",
			[]pair{{"a\n", "-Dy"}, {"b\n", "-Dx -Dy"}, {"c\n", "-Dy"}},
		},
		{
			"insert",
			"a\nc\n",
			"a\nb\nc\n",
			[]pair{{"a\n", "-Dy"}, {"b\n", "-Ux -Dy"}, {"c\n", "-Dy"}},
		},
		{
			"disjoint",
			"a\nb\n",
			"c\nd\n",
			[]pair{{"a\n", "-Dx -Dy"}, {"b\n", "-Dx -Dy"}, {"c\n", "-Ux -Dy"}, {"d\n", "-Ux -Dy"}},
		},
		{
			"empty side",
			"",
			"a\n",
			[]pair{{"a\n", "-Ux -Dy"}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			a := side(tt.a, tag.D("x"), tag.D("y"))
			b := side(tt.b, tag.U("x"), tag.D("y"))
			got, _, err := Merge(a, b, Options{})
			if err != nil {
				t.Fatalf("merge error: %v", err)
			}
			if diff := cmp.Diff(tt.want, flatten(got)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeStats(t *testing.T) {
	a := side("x\ny\n", tag.D("s"))
	b := side("x\ny\n", tag.U("s"))
	_, st, err := Merge(a, b, Options{AutoJunk: true})
	if err != nil {
		t.Fatal(err)
	}
	if !st.Skipped || st.Common != 2 {
		t.Errorf("got %+v; want identical fast path over 2 lines", st)
	}

	b = side("x\nz\n", tag.U("s"))
	_, st, err = Merge(a, b, Options{AutoJunk: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Stats{Common: 1, OnlyA: 1, OnlyB: 1}, st); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSymbolMismatch(t *testing.T) {
	a := side("x\n", tag.D("s"))
	b := side("x\n", tag.U("t"))
	if _, _, err := Merge(a, b, Options{}); !errors.Is(err, ErrSymbolMismatch) {
		t.Fatalf("got %v; want ErrSymbolMismatch", err)
	}
	b = side("x\n", tag.D("s"))
	if _, _, err := Merge(a, b, Options{}); !errors.Is(err, ErrSymbolMismatch) {
		t.Fatalf("got %v; want ErrSymbolMismatch", err)
	}
}

func TestDigestSeparatesLines(t *testing.T) {
	if digest([]string{"ab", "c"}) == digest([]string{"a", "bc"}) {
		t.Error("digest must not depend on concatenation alone")
	}
}
