package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	ifdef_merge "github.com/fwessels/ifdef-merge"
	"github.com/fwessels/ifdef-merge/internal/config"
	"github.com/fwessels/ifdef-merge/internal/logger"
	"github.com/fwessels/ifdef-merge/internal/preprocessor"
	"github.com/fwessels/ifdef-merge/internal/tag"
	"github.com/fwessels/ifdef-merge/internal/variants"
	"github.com/fwessels/ifdef-merge/internal/watch"
)

var Version = "0.3.0"

var log = logger.ForComponent("cli")

type app struct {
	cfg *config.Config

	configPath string
	logLevel   string
	logFormat  string

	output   string
	command  string
	defines  []string
	undefs   []string
	debounce time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "ifdef-merge",
		Short:   "Rebuild #ifdef guards from the expanded variants of a document",
		Long:    "ifdef-merge expands a document under every assignment of its conditional symbols, post-processes each variant, and merges the results back into one document with minimal #ifdef/#ifndef/#if guards.",
		Version: Version,

		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default "+config.FileName+" in the working directory)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "text or json")

	mergeCmd := &cobra.Command{
		Use:   "merge <file|glob>...",
		Short: "Reconstruct each input and write the merged document",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runMerge,
	}
	mergeCmd.Flags().StringVarP(&a.output, "output", "o", "", `output file for a single input, "-" for stdout`)
	a.expanderFlags(mergeCmd)

	symbolsCmd := &cobra.Command{
		Use:   "symbols <file>...",
		Short: "Print the symbols a document's conditionals test",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runSymbols,
	}

	expandCmd := &cobra.Command{
		Use:   "expand -D sym -U sym <file>",
		Short: "Print one variant of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runExpand,
	}
	expandCmd.Flags().StringSliceVarP(&a.defines, "define", "D", nil, "symbol to define, NAME or NAME=value")
	expandCmd.Flags().StringSliceVarP(&a.undefs, "undefine", "U", nil, "symbol to undefine")
	a.expanderFlags(expandCmd)

	watchCmd := &cobra.Command{
		Use:   "watch <glob>...",
		Short: "Merge matching sources again whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runWatch,
	}
	watchCmd.Flags().DurationVar(&a.debounce, "debounce", 300*time.Millisecond, "quiet period before a change is merged")
	a.expanderFlags(watchCmd)

	root.AddCommand(mergeCmd, symbolsCmd, expandCmd, watchCmd)
	return root
}

func (a *app) expanderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("symbols", nil, "symbols to merge over, in order (default: discovered)")
	f.Int("max-symbols", 0, "refuse documents with more symbols than this, 0 for no limit")
	f.IntP("parallelism", "j", 0, "variants expanded at once")
	f.Duration("timeout", 0, "time limit for expanding all variants")
	f.String("mode", "", "expander: strip, cpp or command")
	f.StringVar(&a.command, "command", "", `post-processing command for command mode, e.g. "cython {in} -o {out}"`)
	f.StringSliceP("include", "I", nil, "include directory for cpp mode")
	f.Bool("blank", true, "keep lines removed by stripping as blank lines")
	f.Bool("fold-comments", true, "merge multi-line block comments as one line")
	f.Bool("verify", false, "re-expand the result and compare it with every variant")
	f.Bool("autojunk", false, "let the line aligner ignore very frequent lines")
	f.String("suffix", "", "suffix appended to input names for the output")
}

// load reads the configuration file and lets flags override it.
func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		a.cfg, err = config.Find(".")
	}
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("symbols") {
		a.cfg.Symbols, _ = f.GetStringSlice("symbols")
	}
	if f.Changed("max-symbols") {
		a.cfg.MaxSymbols, _ = f.GetInt("max-symbols")
	}
	if f.Changed("parallelism") {
		a.cfg.Parallelism, _ = f.GetInt("parallelism")
	}
	if f.Changed("timeout") {
		d, _ := f.GetDuration("timeout")
		a.cfg.Timeout = config.Duration(d)
	}
	if f.Changed("mode") {
		a.cfg.Expander.Mode, _ = f.GetString("mode")
	}
	if f.Changed("command") {
		a.cfg.Expander.Command = strings.Fields(a.command)
		if !f.Changed("mode") {
			a.cfg.Expander.Mode = config.ModeCommand
		}
	}
	if f.Changed("include") {
		a.cfg.Expander.IncludeDirs, _ = f.GetStringSlice("include")
	}
	if f.Changed("blank") {
		a.cfg.Expander.Blank, _ = f.GetBool("blank")
	}
	if f.Changed("fold-comments") {
		a.cfg.FoldComments, _ = f.GetBool("fold-comments")
	}
	if f.Changed("verify") {
		a.cfg.Verify, _ = f.GetBool("verify")
	}
	if f.Changed("autojunk") {
		a.cfg.AutoJunk, _ = f.GetBool("autojunk")
	}
	if f.Changed("suffix") {
		a.cfg.OutputSuffix, _ = f.GetString("suffix")
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: level, Format: a.cfg.Log.Format, Output: cmd.ErrOrStderr()})
	return nil
}

func (a *app) options(filename string) (ifdef_merge.Options, error) {
	exp, err := variants.FromConfig(a.cfg.Expander, filename)
	if err != nil {
		return ifdef_merge.Options{}, err
	}
	return ifdef_merge.Options{
		Symbols:      a.cfg.Symbols,
		MaxSymbols:   a.cfg.MaxSymbols,
		Expander:     exp,
		Parallelism:  a.cfg.Parallelism,
		Timeout:      time.Duration(a.cfg.Timeout),
		FoldComments: a.cfg.FoldComments,
		Verify:       a.cfg.Verify,
		AutoJunk:     a.cfg.AutoJunk,
	}, nil
}

// inputs expands glob arguments. A plain name must exist.
func inputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no such file", arg)
		}
		out = append(out, matches...)
	}
	return out, nil
}

func (a *app) runMerge(cmd *cobra.Command, args []string) error {
	files, err := inputs(args)
	if err != nil {
		return err
	}
	if a.output != "" && len(files) > 1 {
		return fmt.Errorf("-o needs a single input, got %d", len(files))
	}
	for _, file := range files {
		out := a.output
		if out == "" {
			out = file + a.cfg.OutputSuffix
		}
		if err := a.mergeFile(cmd.Context(), file, out, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) mergeFile(ctx context.Context, file, out string, stdout io.Writer) error {
	if out != "-" && filepath.Clean(out) == filepath.Clean(file) {
		return fmt.Errorf("%s: refusing to overwrite the input", file)
	}
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	opts, err := a.options(file)
	if err != nil {
		return err
	}
	res, err := ifdef_merge.Reconstruct(ctx, src, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if out == "-" {
		_, err = stdout.Write(res.Document)
		return err
	}
	if err := os.WriteFile(out, res.Document, 0o644); err != nil {
		return err
	}
	log.Info("wrote", "input", file, "output", out, "symbols", strings.Join(res.Symbols, " "), "rounds", res.Rounds)
	return nil
}

func (a *app) runSymbols(cmd *cobra.Command, args []string) error {
	files, err := inputs(args)
	if err != nil {
		return err
	}
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		symbols, err := preprocessor.Symbols(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if len(files) > 1 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", file, strings.Join(symbols, " "))
		} else if len(symbols) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(symbols, "\n"))
		}
	}
	return nil
}

func (a *app) runExpand(cmd *cobra.Command, args []string) error {
	lits := make([]tag.Literal, 0, len(a.defines)+len(a.undefs))
	values := map[string]string{}
	for _, s := range a.defines {
		name, value := preprocessor.ParseDefine(s)
		lits = append(lits, tag.D(name))
		values[name] = value
	}
	for _, s := range a.undefs {
		lits = append(lits, tag.U(s))
	}
	cfg, err := tag.New(lits...)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	exp, err := variants.FromConfig(a.cfg.Expander, args[0])
	if err != nil {
		return err
	}
	// only the macro expander substitutes values
	if cpp, ok := exp.(variants.CPP); ok {
		cpp.Values = values
		exp = cpp
	}
	out, err := exp.Expand(cmd.Context(), src, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var ignore []string
	if a.cfg.OutputSuffix != "" {
		ignore = append(ignore, "**/*"+a.cfg.OutputSuffix)
	}
	w, err := watch.New(watch.Config{
		Root:     ".",
		Patterns: args,
		Ignore:   ignore,
		Debounce: a.debounce,
	}, func(paths []string) {
		for _, p := range paths {
			if err := a.mergeFile(ctx, p, p+a.cfg.OutputSuffix, cmd.OutOrStdout()); err != nil {
				log.Error("merge failed", "path", p, "error", err)
			}
		}
	})
	if err != nil {
		return err
	}

	files, err := w.Files()
	if err != nil {
		return err
	}
	for _, p := range files {
		if err := a.mergeFile(ctx, p, p+a.cfg.OutputSuffix, cmd.OutOrStdout()); err != nil {
			log.Error("merge failed", "path", p, "error", err)
		}
	}
	return w.Run(ctx)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ifdef-merge:", err)
		os.Exit(1)
	}
}
