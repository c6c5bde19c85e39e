// Package leveldb is the durable workspace key-value store: saved
// workspace documents, keyed by name, with no per-record processing
// role — only get/set/delete/list.
package leveldb

import (
	"errors"

	ldb "github.com/syndtr/goleveldb/leveldb"
	ldbopt "github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a name has no saved document.
var ErrNotFound = errors.New("leveldb: workspace not found")

var (
	dopt *ldbopt.Options
	wopt *ldbopt.WriteOptions
	ropt *ldbopt.ReadOptions
)

// DB is a durable leveldb-backed workspace document store.
type DB struct {
	db   *ldb.DB
	path string
}

// Open opens (creating if absent) the leveldb file at path.
func Open(path string) (*DB, error) {
	db, err := ldb.OpenFile(path, dopt)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, path: path}, nil
}

// Close releases the store's resources.
func (d *DB) Close() error {
	err := d.db.Close()
	d.db = nil
	return err
}

// Get returns the saved document for name.
func (d *DB) Get(name string) ([]byte, error) {
	v, err := d.db.Get([]byte(name), ropt)
	if err == ldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

// Set saves (or replaces) the document for name.
func (d *DB) Set(name string, doc []byte) error {
	return d.db.Put([]byte(name), doc, wopt)
}

// Delete removes the document for name. Deleting an absent name is not
// an error.
func (d *DB) Delete(name string) error {
	return d.db.Delete([]byte(name), wopt)
}

// List returns every saved workspace name, lexicographically sorted
// (leveldb's native iteration order).
func (d *DB) List() ([]string, error) {
	var names []string
	iter := d.db.NewIterator(&ldbutil.Range{}, ropt)
	defer iter.Release()
	for iter.Next() {
		names = append(names, string(iter.Key()))
	}
	return names, iter.Error()
}
