package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// Manager numbers checkpoints sequentially on top of a Store.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu   sync.Mutex
	next int
	init bool
}

// NewManager wraps store. A nil logger means slog.Default().
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Save stores a state under the next free index and returns that index.
// The mapping size and creation time of meta are filled in.
func (m *Manager) Save(ctx context.Context, meta Meta, mapping *match.Mapping, skeleton *netgraph.Graph) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.init {
		latest, err := m.store.Latest(ctx)
		switch {
		case errors.Is(err, ErrNotFound):
			m.next = 0
		case err != nil:
			return 0, err
		default:
			m.next = latest + 1
		}
		m.init = true
	}

	meta.Index = m.next
	meta.MappingSize = mapping.Len()
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	if err := m.store.Save(ctx, &Checkpoint{Meta: meta, Mapping: mapping, Skeleton: skeleton}); err != nil {
		return 0, err
	}
	m.logger.Debug("saved checkpoint", "index", meta.Index, "ref", meta.Ref, "version", meta.Version, "mapped", meta.MappingSize)
	m.next++
	return meta.Index, nil
}

// Load returns checkpoint index, or the latest checkpoint when index is
// negative.
func (m *Manager) Load(ctx context.Context, index int) (*Checkpoint, error) {
	if index < 0 {
		latest, err := m.store.Latest(ctx)
		if err != nil {
			return nil, err
		}
		index = latest
	}
	cp, err := m.store.Load(ctx, index)
	if err != nil {
		return nil, err
	}
	if cp.Skeleton.Vertex(0) == nil {
		return nil, fmt.Errorf("checkpoint: %d has an empty skeleton", index)
	}
	return cp, nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
