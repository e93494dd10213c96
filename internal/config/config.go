// Package config loads .ifdef-merge.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".ifdef-merge.yaml"

// Expander modes.
const (
	ModeStrip   = "strip"
	ModeCPP     = "cpp"
	ModeCommand = "command"
)

type Config struct {
	// Symbols, when set, replaces symbol discovery. Order is kept.
	Symbols      []string `yaml:"symbols,omitempty"`
	// MaxSymbols caps the symbol count, and with it the 2^N variants
	// generated. Zero means no limit.
	MaxSymbols   int      `yaml:"max_symbols"`
	Parallelism  int      `yaml:"parallelism,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"`
	Expander     Expander `yaml:"expander"`
	FoldComments bool     `yaml:"fold_comments"`
	Verify       bool     `yaml:"verify"`
	AutoJunk     bool     `yaml:"autojunk"`
	OutputSuffix string   `yaml:"output_suffix,omitempty"`
	Log          Log      `yaml:"log"`
}

type Expander struct {
	Mode string `yaml:"mode,omitempty"`
	// Command is an argv; "{in}" and "{out}" are replaced by temp file paths.
	Command     []string `yaml:"command,omitempty"`
	IncludeDirs []string `yaml:"include_dirs,omitempty"`
	Blank       bool     `yaml:"blank"`
}

type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func Default() *Config {
	return &Config{
		MaxSymbols:   16,
		Parallelism:  runtime.NumCPU(),
		Timeout:      Duration(5 * time.Minute),
		Expander:     Expander{Mode: ModeStrip, Blank: true},
		FoldComments: true,
		OutputSuffix: ".merged",
		Log:          Log{Level: "info", Format: "text"},
	}
}

// Parse decodes data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find loads FileName from dir, or returns the defaults when there is none.
func Find(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	switch c.Expander.Mode {
	case ModeStrip, ModeCPP:
	case ModeCommand:
		if len(c.Expander.Command) == 0 {
			return errors.New("expander.command is required in command mode")
		}
	default:
		return fmt.Errorf("unknown expander.mode %q", c.Expander.Mode)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if c.MaxSymbols < 0 {
		return fmt.Errorf("max_symbols must not be negative, got %d", c.MaxSymbols)
	}
	if c.MaxSymbols > 0 && len(c.Symbols) > c.MaxSymbols {
		return fmt.Errorf("%d symbols listed, max_symbols is %d", len(c.Symbols), c.MaxSymbols)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	seen := map[string]bool{}
	for _, s := range c.Symbols {
		if seen[s] {
			return fmt.Errorf("symbol %q listed twice", s)
		}
		seen[s] = true
	}
	return nil
}
