package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer(t *testing.T) {
	got := make(chan []string, 4)
	d := NewDebouncer(30*time.Millisecond, func(p []string) { got <- p })
	d.Add("b.pyx")
	d.Add("a.pyx")
	d.Add("b.pyx")

	select {
	case paths := <-got:
		assert.Equal(t, []string{"a.pyx", "b.pyx"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("no flush")
	}

	d.Stop()
	d.Add("c.pyx")
	select {
	case paths := <-got:
		t.Fatalf("flush after stop: %v", paths)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMatch(t *testing.T) {
	w, err := New(Config{Patterns: []string{"src/**/*.pyx", "*.pxd"}, Ignore: []string{"**/gen_*"}}, func([]string) {})
	require.NoError(t, err)
	assert.True(t, w.Match("src/core.pyx"))
	assert.True(t, w.Match("src/sub/dir/core.pyx"))
	assert.True(t, w.Match("core.pxd"))
	assert.False(t, w.Match("core.pyx"))
	assert.False(t, w.Match("src/gen_core.pyx"))
	assert.False(t, w.Match("src/core.pyx.merged"))
}

func TestNewBadPattern(t *testing.T) {
	_, err := New(Config{Patterns: []string{"src/[a"}}, nil)
	assert.Error(t, err)
}

func write(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestFiles(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.pyx"), "a")
	write(t, filepath.Join(root, "sub", "b.pyx"), "b")
	write(t, filepath.Join(root, "sub", "b.c"), "c")
	write(t, filepath.Join(root, "sub", "gen_c.pyx"), "g")

	w, err := New(Config{Root: root, Patterns: []string{"**/*.pyx"}, Ignore: []string{"**/gen_*"}}, nil)
	require.NoError(t, err)
	files, err := w.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pyx", "sub/b.pyx"}, files)
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "sub", "a.pyx"), "a")

	var mu sync.Mutex
	var changed []string
	done := make(chan struct{}, 1)
	w, err := New(Config{Root: root, Patterns: []string{"**/*.pyx"}, Debounce: 20 * time.Millisecond}, func(p []string) {
		mu.Lock()
		changed = append(changed, p...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give the watcher time to register the tree.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		write(t, filepath.Join(root, "sub", "a.pyx"), "changed")
		write(t, filepath.Join(root, "sub", "a.c"), "ignored")
		select {
		case <-done:
			break wait
		case <-tick.C:
		case <-deadline:
			t.Fatal("no change reported")
		}
	}

	cancel()
	require.NoError(t, <-errc)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changed, "sub/a.pyx")
	assert.NotContains(t, changed, "sub/a.c")
}
