// Package variants materializes the expanded text of a document under every
// complete configuration of its symbols.
package variants

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"

	"github.com/fwessels/ifdef-merge/internal/config"
	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/mergetree"
	"github.com/fwessels/ifdef-merge/internal/preprocessor"
	"github.com/fwessels/ifdef-merge/internal/tag"
)

var log = logger.ForComponent("variants")

// An Expander produces the text of src under cfg. Implementations must be
// safe for concurrent use.
type Expander interface {
	Expand(ctx context.Context, src []byte, cfg tag.Config) ([]byte, error)
}

// Strip resolves only the conditionals on the configured symbols.
type Strip struct {
	Blank bool
}

func (s Strip) Expand(ctx context.Context, src []byte, cfg tag.Config) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := preprocessor.StripString(string(src), cfg, preprocessor.StripOptions{Blank: s.Blank})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// CPP runs the full macro preprocessor. A defined symbol expands to its
// entry in Values, or 1.
type CPP struct {
	// Filename resolves relative #include lines.
	Filename    string
	IncludeDirs []string
	// Blank turns directive lines into empty lines.
	Blank  bool
	Values map[string]string
}

func (c CPP) Expand(ctx context.Context, src []byte, cfg tag.Config) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := preprocessor.NewPreprocessor()
	p.IncludeDirs = c.IncludeDirs
	p.BlankDirectives = c.Blank
	p.Assign(cfg)
	for _, l := range cfg.Literals() {
		if v, ok := c.Values[l.Symbol]; ok && l.Polarity == tag.Defined {
			p.DefineObject(l.Symbol, v)
		}
	}
	name := c.Filename
	if name == "" {
		name = "<stdin>"
	}
	var out bytes.Buffer
	if err := p.Process(name, bytes.NewReader(src), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Command strips the document and hands the result to an external program.
// Argv may name the input and output files with "{in}" and "{out}"; without
// "{out}" the program's stdout is the variant.
type Command struct {
	Argv  []string
	Strip Strip
	// Ext is appended to the temp file names so tools that dispatch on the
	// extension see the input file's.
	Ext string
}

func (c Command) Expand(ctx context.Context, src []byte, cfg tag.Config) ([]byte, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	stripped, err := c.Strip.Expand(ctx, src, cfg)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "ifdef-merge-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in"+c.Ext)
	out := filepath.Join(dir, "out"+c.Ext)
	if err := os.WriteFile(in, stripped, 0o666); err != nil {
		return nil, err
	}

	useOut := false
	argv := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		if strings.Contains(a, "{out}") {
			useOut = true
		}
		argv[i] = strings.NewReplacer("{in}", in, "{out}", out).Replace(a)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	if !useOut {
		return stdout.Bytes(), nil
	}
	return os.ReadFile(out)
}

type Options struct {
	// Parallelism bounds the number of expansions in flight; values below 1
	// mean one at a time.
	Parallelism int
	// Timeout, if positive, bounds the whole generation step.
	Timeout time.Duration
}

// Generate expands src under every configuration of symbols, in
// mergetree.Configurations order. The first failure cancels the rest and no
// variants are returned.
func Generate(ctx context.Context, src []byte, symbols []string, exp Expander, opts Options) ([]mergetree.Variant, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	configs := mergetree.Configurations(symbols)
	out := make([]mergetree.Variant, len(configs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			text, err := exp.Expand(gctx, src, cfg)
			if err != nil {
				return fmt.Errorf("expand %s: %w", cfg.Key(), err)
			}
			sum := blake3.Sum256(text)
			log.Debug("variant expanded", "config", cfg.Key(), "bytes", len(text), "blake3", hex.EncodeToString(sum[:8]))
			out[i] = mergetree.Variant{Config: cfg, Text: string(text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("variants generated", "count", len(out), "symbols", len(symbols))
	return out, nil
}

// FromConfig builds the expander the configuration names. filename is the
// document being merged; it resolves includes and picks the temp file
// extension.
func FromConfig(c config.Expander, filename string) (Expander, error) {
	strip := Strip{Blank: c.Blank}
	switch c.Mode {
	case config.ModeStrip, "":
		return strip, nil
	case config.ModeCPP:
		return CPP{Filename: filename, IncludeDirs: c.IncludeDirs, Blank: c.Blank}, nil
	case config.ModeCommand:
		if len(c.Command) == 0 {
			return nil, fmt.Errorf("command mode needs a command")
		}
		return Command{Argv: c.Command, Strip: strip, Ext: filepath.Ext(filename)}, nil
	}
	return nil, fmt.Errorf("unknown expander mode %q", c.Mode)
}
