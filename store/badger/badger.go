// Package badger provides a durable core.RunStore backed by an embedded
// Badger key/value database. Runs are serialized as JSON documents under
// run: keys; a secondary user: index supports per-user listing without a
// full scan.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/internal/xjson"
	"github.com/flowmesh-io/flowmesh/logging"
)

const (
	runPrefix  = "run:"
	userPrefix = "user:"
)

func runKey(runID string) []byte {
	return []byte(runPrefix + runID)
}

func userKey(userID, runID string) []byte {
	return []byte(userPrefix + userID + ":" + runID)
}

// Store is a core.RunStore persisting runs in a Badger database.
//
// Concurrency is delegated to Badger's transaction layer; every Save runs in
// its own read-write transaction so concurrent runs never interleave partial
// writes.
type Store struct {
	db     *badger.DB
	logger logging.Logger
}

// Options holds configuration for Open.
type Options struct {
	// Logger receives Badger's internal log output and the store's own
	// debug output. A nil logger disables both.
	Logger logging.Logger
}

// Open opens (or creates) a Badger database at path and wraps it in a Store.
// Close must be called to release the directory lock.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	badgerOpts := badger.DefaultOptions(path)
	badgerOpts.Logger = &badgerLogger{logger: opts.Logger}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger database at %s: %w", path, err)
	}

	return &Store{db: db, logger: opts.Logger}, nil
}

// NewStore wraps an already opened Badger database. The caller keeps
// ownership of the database lifecycle.
func NewStore(db *badger.DB, optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Store{db: db, logger: opts.Logger}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a snapshot of the run and its user index entry.
func (s *Store) Save(_ context.Context, run *core.Run) error {
	snapshot := run.Clone()

	data, err := xjson.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("serialize run %s: %w", snapshot.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(snapshot.ID), data); err != nil {
			return err
		}
		return txn.Set(userKey(snapshot.UserID, snapshot.ID), []byte(snapshot.ID))
	})
	if err != nil {
		return fmt.Errorf("persist run %s: %w", snapshot.ID, err)
	}

	s.logger.Debug("store.badger.saved", "run_id", snapshot.ID, "status", string(snapshot.Status), "bytes", len(data))
	return nil
}

// FindByID loads one run. Returns core.ErrRunNotFound when absent.
func (s *Store) FindByID(_ context.Context, runID string) (*core.Run, error) {
	var run core.Run

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return core.ErrRunNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			return xjson.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// FindByUser lists the user's runs newest first, narrowed by filter. The
// user index yields candidate run IDs; status filtering requires loading
// each candidate document.
func (s *Store) FindByUser(ctx context.Context, userID string, filter core.RunFilter) ([]*core.Run, error) {
	var runIDs []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix + userID + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			runIDs = append(runIDs, key[len(opts.Prefix):])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	runs := make([]*core.Run, 0, len(runIDs))
	for _, id := range runIDs {
		run, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrRunNotFound) {
				continue
			}
			return nil, err
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Created.After(runs[j].Created)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return []*core.Run{}, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(runs) {
		runs = runs[:filter.Limit]
	}

	return runs, nil
}

// DeleteOlderThan removes terminal runs whose last update is older than age,
// together with their user index entries.
func (s *Store) DeleteOlderThan(_ context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)

	type victim struct {
		runID  string
		userID string
	}
	var victims []victim

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var run core.Run
			err := item.Value(func(val []byte) error {
				return xjson.Unmarshal(val, &run)
			})
			if err != nil {
				return err
			}

			if run.Status.Terminal() && run.Updated.Before(cutoff) {
				victims = append(victims, victim{runID: run.ID, userID: run.UserID})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(victims) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, v := range victims {
			if err := txn.Delete(runKey(v.runID)); err != nil {
				return err
			}
			if err := txn.Delete(userKey(v.userID, v.runID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("store.badger.cleanup", "removed", len(victims))
	return len(victims), nil
}

// badgerLogger adapts the module's Logger to Badger's logging interface.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}
