// Package checkpoint persists search states so a long search can be
// resumed. A checkpoint is a numbered (mapping, skeleton) pair plus
// metadata about the seed that produced it.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// ErrNotFound is returned when a checkpoint index does not exist, or when
// a store holds no checkpoints at all.
var ErrNotFound = errors.New("checkpoint: not found")

// Meta describes where a checkpoint came from.
type Meta struct {
	Index       int       `json:"index"`
	Ref         string    `json:"ref"`
	Version     int       `json:"version"`
	SessionID   string    `json:"session_id"`
	MappingSize int       `json:"mapping_size"`
	Created     time.Time `json:"created"`
}

// Checkpoint is one saved search state.
type Checkpoint struct {
	Meta     Meta
	Mapping  *match.Mapping
	Skeleton *netgraph.Graph
}

// Store is a durable home for checkpoints.
type Store interface {
	// Save writes cp under cp.Meta.Index, replacing any previous record.
	Save(ctx context.Context, cp *Checkpoint) error
	// Load reads the checkpoint with the given index.
	Load(ctx context.Context, index int) (*Checkpoint, error)
	// Latest returns the highest stored index.
	Latest(ctx context.Context) (int, error)
	Close() error
}
