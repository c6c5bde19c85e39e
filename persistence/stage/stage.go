// Package stage provides a transient, in-memory key-value scratch area
// used to stage a workspace load before it is atomically installed into
// the live registry: every decoded node document is batched into an
// in-memory moss.Collection as it's validated, then replayed back out
// once the whole document has decoded successfully, so a malformed or
// partially-staged workspace is caught before any live state is touched.
package stage

import (
	"bytes"

	"github.com/couchbase/moss"
)

var (
	wopts    = moss.WriteOptions{}
	iteropts = moss.IteratorOptions{}
)

// Stage is a disposable key-value collection, one per load attempt.
type Stage struct {
	coll moss.Collection
}

// New starts a fresh, empty stage.
func New() (*Stage, error) {
	coll, err := moss.NewCollection(moss.DefaultCollectionOptions)
	if err != nil {
		return nil, err
	}
	if err := coll.Start(); err != nil {
		return nil, err
	}
	return &Stage{coll: coll}, nil
}

// Put stages one key-value pair, e.g. an instance ID to its decoded
// document, for later replay via Each.
func (s *Stage) Put(key, value []byte) error {
	batch, err := s.coll.NewBatch(1, len(key)+len(value))
	if err != nil {
		return err
	}
	defer batch.Close()
	if err := batch.Set(key, value); err != nil {
		return err
	}
	return s.coll.ExecuteBatch(batch, wopts)
}

// Each replays every staged pair in key order, stopping at the first
// error cb returns.
func (s *Stage) Each(cb func(key, value []byte) error) error {
	ss, err := s.coll.Snapshot()
	if err != nil {
		return err
	}
	iter, err := ss.StartIterator(nil, nil, iteropts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for {
		key, val, err := iter.Current()
		if err != nil {
			if err == moss.ErrIteratorDone {
				return nil
			}
			return err
		}
		if err := cb(bytes.Clone(key), bytes.Clone(val)); err != nil {
			return err
		}
		iter.Next()
	}
}

// Close discards the stage, releasing its resources. Called on both
// successful install and aborted load.
func (s *Stage) Close() error {
	return s.coll.Close()
}
