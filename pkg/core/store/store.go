// Package store wraps an embedded ordered key-value store for durable
// persistence of mempool entries. It mirrors the teacher's leveldb
// adapter (pkg/core/chain/database.go) but drops the block/header
// schema in favor of the flat hash-keyed schema the mempool needs.
package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Error wraps any I/O or encoding fault surfaced by the store.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Store is a typed wrapper over a goleveldb database. Opening the
// underlying file takes an OS-level lock, which is what gives the
// wider system its single-writer-per-path precondition: a second
// process pointed at the same path fails NewStore outright.
type Store struct {
	db *leveldb.DB
}

// NewStore opens (or creates) the leveldb database at path.
func NewStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if _, corrupted := err.(*leveldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, wrap("open", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error {
	return wrap("close", s.db.Close())
}

// Put durably writes value under key. Writes are immediately durable;
// goleveldb's write-ahead log fsyncs on every Put by default in this
// adapter (opt.WriteOptions{Sync: true}), matching §4.1's "no caching,
// writes are immediately durable".
func (s *Store) Put(key, value []byte) error {
	return wrap("put", s.db.Put(key, value, &opt.WriteOptions{Sync: true}))
}

// Delete removes key. Deleting an absent key is not an error, matching
// goleveldb's own Delete semantics.
func (s *Store) Delete(key []byte) error {
	return wrap("delete", s.db.Delete(key, &opt.WriteOptions{Sync: true}))
}

// Has reports whether key is present.
func (s *Store) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, wrap("has", err)
	}
	return ok, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key []byte) ([]byte, error) {
	val, err := s.db.Get(key, nil)
	if err != nil {
		return nil, wrap("get", err)
	}
	return val, nil
}

// Iterate returns a lazy, finite, non-restartable iterator over the
// store's entries in natural (lexicographic) key order. Callers must
// call Release when done.
func (s *Store) Iterate() iterator.Iterator {
	return s.db.NewIterator(nil, nil)
}

// Count iterates the whole store and returns the number of entries.
// Used by transaction_count(); leveldb keeps no running key count, so
// this is a full scan, matching the teacher's style of deriving
// aggregate state by walking storage rather than caching it.
func (s *Store) Count() (int, error) {
	it := s.Iterate()
	defer it.Release()

	var n int
	for it.Next() {
		n++
	}
	if err := it.Error(); err != nil {
		return 0, wrap("iterate", err)
	}
	return n, nil
}

// IsNotFound reports whether err is leveldb's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}
