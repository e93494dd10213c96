/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ifdef_merge rebuilds a conditional compilation document from its
// expanded variants: one variant per assignment of the document's symbols
// is generated, the variants are merged line by line, and the result is
// written back out with #ifdef/#ifndef/#if guards.
package ifdef_merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwessels/ifdef-merge/internal/comments"
	"github.com/fwessels/ifdef-merge/internal/emit"
	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/mergetree"
	"github.com/fwessels/ifdef-merge/internal/preprocessor"
	"github.com/fwessels/ifdef-merge/internal/reconcile"
	"github.com/fwessels/ifdef-merge/internal/tag"
	"github.com/fwessels/ifdef-merge/internal/variants"
)

var log = logger.ForComponent("ifdef-merge")

var (
	// ErrRoundTrip is returned by Verify when re-expanding the merged
	// document does not reproduce a variant.
	ErrRoundTrip = errors.New("round trip mismatch")
	// ErrTooManySymbols is returned by Reconstruct before any variant is
	// generated when the symbol count exceeds Options.MaxSymbols.
	ErrTooManySymbols = errors.New("too many symbols")
)

// Variant is the expanded text of a document under one complete
// configuration.
type Variant = mergetree.Variant

// Expander produces one variant; see the variants package for the built in
// strip, cpp and command expanders.
type Expander = variants.Expander

type Options struct {
	// Symbols fixes the symbol set and its order. When empty the symbols
	// are discovered from the document's conditionals.
	Symbols []string
	// MaxSymbols, if positive, bounds the number of symbols.
	MaxSymbols int
	// Expander defaults to conditional stripping that keeps removed lines
	// as blanks.
	Expander    Expander
	Parallelism int
	Timeout     time.Duration
	// FoldComments joins multi-line block comments before merging.
	FoldComments bool
	// Verify re-expands the result under every configuration.
	Verify   bool
	AutoJunk bool
}

type Result struct {
	Document []byte
	Symbols  []string
	Rounds   int
	Merge    mergetree.Report
	Emit     emit.Stats
}

// Reconstruct expands src under every configuration of its symbols and
// merges the variants back into one guarded document. A document without
// symbols is returned unchanged by the strip expander; any other expander
// still runs once over it with an empty configuration.
func Reconstruct(ctx context.Context, src []byte, opts Options) (*Result, error) {
	crlf := bytes.Contains(src, []byte("\r\n"))
	text := src
	if crlf {
		text = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	}

	symbols := opts.Symbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = preprocessor.SymbolsString(string(text)); err != nil {
			return nil, fmt.Errorf("symbols: %w", err)
		}
	}
	if opts.MaxSymbols > 0 && len(symbols) > opts.MaxSymbols {
		return nil, fmt.Errorf("%w: %d symbols (%s), limit is %d",
			ErrTooManySymbols, len(symbols), strings.Join(symbols, ", "), opts.MaxSymbols)
	}

	exp := opts.Expander
	if exp == nil {
		exp = variants.Strip{Blank: true}
	}
	if len(symbols) == 0 {
		if _, ok := exp.(variants.Strip); ok {
			log.Info("no symbols, document unchanged")
			return &Result{Document: src}, nil
		}
		log.Info("no symbols, expanding once")
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		out, err := exp.Expand(ctx, text, tag.Config{})
		if err != nil {
			return nil, err
		}
		if crlf {
			out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
		}
		return &Result{Document: out}, nil
	}
	log.Info("found symbols", "symbols", strings.Join(symbols, ", "))

	vs, err := variants.Generate(ctx, text, symbols, exp, variants.Options{
		Parallelism: opts.Parallelism,
		Timeout:     opts.Timeout,
	})
	if err != nil {
		return nil, err
	}

	res, err := Merge(symbols, vs, opts)
	if err != nil {
		return nil, err
	}
	if crlf {
		res.Document = bytes.ReplaceAll(res.Document, []byte("\n"), []byte("\r\n"))
	}
	return res, nil
}

// Merge reconciles variants, one per complete configuration of symbols, and
// emits the guarded document.
func Merge(symbols []string, vs []Variant, opts Options) (*Result, error) {
	var fold comments.Folder
	mopts := mergetree.Options{Reconcile: reconcile.Options{AutoJunk: opts.AutoJunk}}
	if opts.FoldComments {
		fold = comments.New()
		mopts.Transform = fold.FoldLines
	}

	d, err := mergetree.NewDriver(symbols, mopts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	lines, rep, err := d.Merge(vs)
	if err != nil {
		return nil, err
	}
	doc, stats, err := emit.String(lines)
	if err != nil {
		return nil, err
	}
	doc = fold.Unfold(doc)
	log.Info("merged",
		"rounds", rep.Rounds,
		"merges", rep.Merges,
		"lines", stats.Lines,
		"blocks", stats.Blocks,
		"elapsed", time.Since(start))

	if opts.Verify {
		if err := Verify([]byte(doc), vs); err != nil {
			return nil, err
		}
	}
	return &Result{
		Document: []byte(doc),
		Symbols:  d.Symbols(),
		Rounds:   rep.Rounds,
		Merge:    rep,
		Emit:     stats,
	}, nil
}

// Verify re-expands doc under each variant's configuration and compares the
// result with the variant text. A missing final newline is not a
// difference: the emitter terminates a last line that is followed by a
// directive.
func Verify(doc []byte, vs []Variant) error {
	for _, v := range vs {
		got, err := preprocessor.StripString(string(doc), v.Config, preprocessor.StripOptions{})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrRoundTrip, v.Config.Key(), err)
		}
		if terminated(got) == terminated(v.Text) {
			continue
		}
		want, have := tag.SplitLines(terminated(v.Text)), tag.SplitLines(terminated(got))
		i := 0
		for i < len(want) && i < len(have) && want[i] == have[i] {
			i++
		}
		return fmt.Errorf("%w: %s: line %d: want %q, got %q",
			ErrRoundTrip, v.Config.Key(), i+1, lineAt(want, i), lineAt(have, i))
	}
	return nil
}

func terminated(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return "<EOF>"
}
