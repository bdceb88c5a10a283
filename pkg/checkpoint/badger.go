package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

const keyPrefix = "checkpoint/"

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// SyncWrites makes every save durable before it returns.
	SyncWrites bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps checkpoints in a badger database under the keys
// checkpoint/<index>/{mapping,graph,meta}, with the index zero-padded so
// that keys sort numerically.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: badger path is required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("checkpoint: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(index int, part string) []byte {
	return []byte(fmt.Sprintf("%s%016d/%s", keyPrefix, index, part))
}

// Save implements Store. All parts are written in one transaction.
func (s *BadgerStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mapping, err := json.Marshal(cp.Mapping)
	if err != nil {
		return fmt.Errorf("checkpoint: encode mapping %d: %w", cp.Meta.Index, err)
	}
	graph, err := json.Marshal(cp.Skeleton)
	if err != nil {
		return fmt.Errorf("checkpoint: encode graph %d: %w", cp.Meta.Index, err)
	}
	meta, err := json.Marshal(cp.Meta)
	if err != nil {
		return fmt.Errorf("checkpoint: encode meta %d: %w", cp.Meta.Index, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(cp.Meta.Index, "mapping"), mapping); err != nil {
			return err
		}
		if err := txn.Set(recordKey(cp.Meta.Index, "graph"), graph); err != nil {
			return err
		}
		return txn.Set(recordKey(cp.Meta.Index, "meta"), meta)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: save %d: %w", cp.Meta.Index, err)
	}
	return nil
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, index int) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp := &Checkpoint{Mapping: match.NewMapping(), Skeleton: netgraph.New()}
	err := s.db.View(func(txn *badger.Txn) error {
		parts := []struct {
			name string
			into any
		}{
			{"mapping", cp.Mapping},
			{"graph", cp.Skeleton},
			{"meta", &cp.Meta},
		}
		for _, p := range parts {
			item, err := txn.Get(recordKey(index, p.name))
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, p.into)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", p.name, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %d: %w", index, err)
	}
	cp.Meta.Index = index
	return cp, nil
}

// Latest implements Store.
func (s *BadgerStore) Latest(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	latest := -1
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasSuffix(key, "/mapping") {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), "/mapping"))
			if err != nil {
				continue
			}
			if n > latest {
				latest = n
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("checkpoint: scan: %w", err)
	}
	if latest < 0 {
		return 0, ErrNotFound
	}
	return latest, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
