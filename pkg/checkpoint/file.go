package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

const filePrefix = "checkpoint_"

// FileStore keeps checkpoints as JSON file pairs in a directory:
// checkpoint_<n>.mapping.json and checkpoint_<n>.graph.json, with the
// metadata in checkpoint_<n>.meta.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(index int, part string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d.%s.json", filePrefix, index, part))
}

// Save implements Store. The mapping file is written last so that a
// checkpoint only becomes visible once complete.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts := []struct {
		name  string
		value any
	}{
		{"graph", cp.Skeleton},
		{"meta", cp.Meta},
		{"mapping", cp.Mapping},
	}
	for _, p := range parts {
		data, err := json.Marshal(p.value)
		if err != nil {
			return fmt.Errorf("checkpoint: encode %s %d: %w", p.name, cp.Meta.Index, err)
		}
		if err := os.WriteFile(s.path(cp.Meta.Index, p.name), data, 0644); err != nil {
			return fmt.Errorf("checkpoint: write %s %d: %w", p.name, cp.Meta.Index, err)
		}
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, index int) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp := &Checkpoint{Mapping: match.NewMapping(), Skeleton: netgraph.New()}
	if err := readJSON(s.path(index, "mapping"), cp.Mapping); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
		}
		return nil, err
	}
	if err := readJSON(s.path(index, "graph"), cp.Skeleton); err != nil {
		return nil, err
	}
	if err := readJSON(s.path(index, "meta"), &cp.Meta); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cp.Meta.Index = index
	return cp, nil
}

// Latest implements Store.
func (s *FileStore) Latest(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: list %s: %w", s.dir, err)
	}
	latest := -1
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".mapping.json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".mapping.json"))
		if err != nil {
			continue
		}
		if n > latest {
			latest = n
		}
	}
	if latest < 0 {
		return 0, ErrNotFound
	}
	return latest, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("checkpoint: parse %s: %w", path, err)
	}
	return nil
}
