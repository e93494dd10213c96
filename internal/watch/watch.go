// Package watch re-runs a merge whenever a watched source changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/fwessels/ifdef-merge/internal/logger"
)

var log = logger.ForComponent("watch")

type Config struct {
	// Root is the directory patterns are relative to.
	Root string
	// Patterns select the sources, e.g. "src/**/*.pyx".
	Patterns []string
	// Ignore excludes paths even when a pattern matches.
	Ignore   []string
	Debounce time.Duration
}

type Watcher struct {
	cfg       Config
	fs        *fsnotify.Watcher
	debouncer *Debouncer
}

// New creates a watcher that calls onChange with the changed sources,
// relative to the root, after each quiet period.
func New(cfg Config, onChange func([]string)) (*Watcher, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	for _, p := range append(slices.Clone(cfg.Patterns), cfg.Ignore...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:       cfg,
		fs:        fsw,
		debouncer: NewDebouncer(cfg.Debounce, onChange),
	}, nil
}

// Match reports whether rel, a slash separated path relative to the root,
// is a watched source.
func (w *Watcher) Match(rel string) bool {
	for _, p := range w.cfg.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	for _, p := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Files lists the watched sources currently present, sorted.
func (w *Watcher) Files() ([]string, error) {
	fsys := os.DirFS(w.cfg.Root)
	seen := map[string]bool{}
	var out []string
	for _, p := range w.cfg.Patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] && w.Match(m) {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		log.Debug("watching directory", "path", path)
		return w.fs.Add(path)
	})
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	defer w.debouncer.Stop()

	if err := w.addTree(w.cfg.Root); err != nil {
		return err
	}
	log.Info("watching", "root", w.cfg.Root, "patterns", strings.Join(w.cfg.Patterns, " "))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						log.Warn("cannot watch directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			rel, err := filepath.Rel(w.cfg.Root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if w.Match(rel) {
				log.Debug("source changed", "path", rel, "op", ev.Op.String())
				w.debouncer.Add(rel)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}
