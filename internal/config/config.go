// Package config loads iprec settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
	"github.com/OpenTraceLab/iprec/pkg/replace"
	"github.com/OpenTraceLab/iprec/pkg/search"
)

// MaxFileSize is the largest config file accepted.
const MaxFileSize = 1024 * 1024

// Checkpoint backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config is the complete iprec configuration.
type Config struct {
	Library    LibraryConfig    `yaml:"library"`
	Match      MatchConfig      `yaml:"match"`
	Search     SearchConfig     `yaml:"search"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LibraryConfig struct {
	Dir string `yaml:"dir"`
}

type MatchConfig struct {
	EquationProperty  string   `yaml:"equation_property"`
	IgnoredProperties []string `yaml:"ignored_properties"`
	ConstantRefs      []string `yaml:"constant_refs"`
	// GroundRef and SupplyRef pick the constant_refs entries that drive
	// const0 and const1 signals.
	GroundRef    string   `yaml:"ground_ref"`
	SupplyRef    string   `yaml:"supply_ref"`
	BoundaryRefs []string `yaml:"boundary_refs"`
	// Flat reads designs recorded from a flattened netlist.
	Flat bool `yaml:"flat"`
}

type SearchConfig struct {
	Greedy      bool     `yaml:"greedy"`
	MaxDepth    int      `yaml:"max_depth"`
	Workers     int      `yaml:"workers"`
	MinSeedSpan int      `yaml:"min_seed_span"`
	SpecialRefs []string `yaml:"special_refs"`
	EdgeLimit   int      `yaml:"edge_limit"`
	SeedSpans   string   `yaml:"seed_spans"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// File receives the metrics in text exposition format at exit.
	File string `yaml:"file"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	mo := match.DefaultOptions()
	ro := replace.DefaultOptions()
	so := search.DefaultOptions()
	return &Config{
		Library: LibraryConfig{Dir: "library"},
		Match: MatchConfig{
			EquationProperty:  mo.EquationProperty,
			IgnoredProperties: mo.IgnoredProperties,
			ConstantRefs:      mo.ConstantRefs,
			GroundRef:         ro.Consts.Ground,
			SupplyRef:         ro.Consts.Supply,
			BoundaryRefs:      []string{"IBUF", "OBUF"},
		},
		Search: SearchConfig{
			Greedy:      ro.Greedy,
			MaxDepth:    ro.MaxDepth,
			Workers:     ro.Workers,
			MinSeedSpan: so.MinSeedSpan,
			SpecialRefs: so.SpecialRefs,
			EdgeLimit:   ro.EdgeLimit,
			SeedSpans:   so.SeedSpans,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Backend: BackendFile,
			Dir:     "checkpoints",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config: %s is too large: %d bytes (max %d)", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode applies a YAML document on top of the current values. Unknown
// keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate normalizes values and reports the first invalid one.
func (c *Config) Validate() error {
	if c.Library.Dir == "" {
		return errors.New("config: library.dir is required")
	}
	if c.Search.Workers < 1 {
		c.Search.Workers = 1
	}
	if c.Search.MaxDepth < 1 {
		return fmt.Errorf("config: search.max_depth must be at least 1, got %d", c.Search.MaxDepth)
	}
	if c.Search.MinSeedSpan < 0 {
		c.Search.MinSeedSpan = 0
	}
	if c.Search.EdgeLimit < 1 {
		return fmt.Errorf("config: search.edge_limit must be positive, got %d", c.Search.EdgeLimit)
	}
	for _, r := range []struct{ key, ref string }{
		{"ground_ref", c.Match.GroundRef},
		{"supply_ref", c.Match.SupplyRef},
	} {
		if r.ref == "" {
			return fmt.Errorf("config: match.%s is required", r.key)
		}
		if !slices.Contains(c.Match.ConstantRefs, r.ref) {
			return fmt.Errorf("config: match.%s %q is not listed in match.constant_refs", r.key, r.ref)
		}
	}

	c.Search.SeedSpans = strings.ToLower(c.Search.SeedSpans)
	switch c.Search.SeedSpans {
	case "":
		c.Search.SeedSpans = search.SeedPrimitive
	case search.SeedPrimitive, search.SeedAll:
	default:
		return fmt.Errorf("config: search.seed_spans must be %q or %q, got %q", search.SeedPrimitive, search.SeedAll, c.Search.SeedSpans)
	}

	c.Checkpoint.Backend = strings.ToLower(c.Checkpoint.Backend)
	switch c.Checkpoint.Backend {
	case "":
		c.Checkpoint.Backend = BackendFile
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("config: unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Dir == "" {
		return errors.New("config: checkpoint.dir is required when checkpoints are enabled")
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// MatchOptions returns the matcher rules.
func (c *Config) MatchOptions() match.Options {
	return match.Options{
		EquationProperty:  c.Match.EquationProperty,
		IgnoredProperties: c.Match.IgnoredProperties,
		ConstantRefs:      c.Match.ConstantRefs,
	}
}

// ImportOptions returns the design import settings.
func (c *Config) ImportOptions() netgraph.ImportOptions {
	return netgraph.ImportOptions{
		BoundaryRefs: c.Match.BoundaryRefs,
		Consts:       c.consts(),
		Flat:         c.Match.Flat,
	}
}

func (c *Config) consts() netgraph.ConstRefs {
	return netgraph.ConstRefs{Ground: c.Match.GroundRef, Supply: c.Match.SupplyRef}
}

// SearchOptions returns the sweep and engine settings.
func (c *Config) SearchOptions() search.Options {
	return search.Options{
		MinSeedSpan: c.Search.MinSeedSpan,
		SpecialRefs: c.Search.SpecialRefs,
		SeedSpans:   c.Search.SeedSpans,
		Replace: replace.Options{
			Workers:   c.Search.Workers,
			EdgeLimit: c.Search.EdgeLimit,
			Greedy:    c.Search.Greedy,
			MaxDepth:  c.Search.MaxDepth,
			Consts:    c.consts(),
		},
	}
}
