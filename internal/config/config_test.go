package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
	"github.com/OpenTraceLab/iprec/pkg/search"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iprec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "CONFIG.EQN", cfg.Match.EquationProperty)
	assert.True(t, cfg.Search.Greedy)
	assert.Equal(t, 5, cfg.Search.MinSeedSpan)
	assert.Equal(t, []string{"DSP48E1"}, cfg.Search.SpecialRefs)
	assert.Equal(t, BackendFile, cfg.Checkpoint.Backend)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
library:
  dir: /var/lib/iprec
search:
  greedy: false
  workers: 0
  min_seed_span: 2
  seed_spans: ALL
checkpoint:
  backend: badger
  dir: /tmp/cp
log:
  level: DEBUG
  format: json
metrics:
  file: metrics.prom
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/iprec", cfg.Library.Dir)
	assert.False(t, cfg.Search.Greedy)
	assert.Equal(t, 1, cfg.Search.Workers)
	assert.Equal(t, 2, cfg.Search.MinSeedSpan)
	assert.Equal(t, search.SeedAll, cfg.Search.SeedSpans)
	assert.Equal(t, BackendBadger, cfg.Checkpoint.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "metrics.prom", cfg.Metrics.File)
	// untouched sections keep their defaults
	assert.Equal(t, "CONFIG.EQN", cfg.Match.EquationProperty)
	assert.Equal(t, 2, cfg.Search.MaxDepth)

	so := cfg.SearchOptions()
	assert.False(t, so.Replace.Greedy)
	assert.Equal(t, 1, so.Replace.Workers)
	assert.Equal(t, 200, so.Replace.EdgeLimit)
	assert.Equal(t, []string{"IBUF", "OBUF"}, cfg.ImportOptions().BoundaryRefs)
	assert.Equal(t, "CONFIG.EQN", cfg.MatchOptions().EquationProperty)
}

func TestLoadConstantsAndFlatImport(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
match:
  constant_refs: [GND, VDD]
  supply_ref: VDD
  flat: true
`))
	require.NoError(t, err)

	imp := cfg.ImportOptions()
	assert.True(t, imp.Flat)
	assert.Equal(t, netgraph.ConstRefs{Ground: "GND", Supply: "VDD"}, imp.Consts)
	assert.Equal(t, imp.Consts, cfg.SearchOptions().Replace.Consts)
	assert.Equal(t, []string{"GND", "VDD"}, cfg.MatchOptions().ConstantRefs)

	def := DefaultConfig()
	assert.Equal(t, netgraph.DefaultConstRefs(), def.ImportOptions().Consts)
	assert.False(t, def.ImportOptions().Flat)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", "search: [1, 2"},
		{"unknown key", "search:\n  greedyy: true\n"},
		{"bad backend", "checkpoint:\n  backend: sqlite\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad seed spans", "search:\n  seed_spans: some\n"},
		{"negative depth", "search:\n  max_depth: -1\n"},
		{"zero depth", "search:\n  max_depth: 0\n"},
		{"empty ground ref", "match:\n  ground_ref: \"\"\n"},
		{"supply ref not a constant", "match:\n  supply_ref: VDD\n"},
		{"zero edge limit", "search:\n  edge_limit: 0\n"},
		{"empty library", "library:\n  dir: \"\"\n"},
		{"checkpoint without dir", "checkpoint:\n  enabled: true\n  dir: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(path, make([]byte, MaxFileSize+1), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "too large")
}
