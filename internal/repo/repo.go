// Package repo is the typed document store of singletons and named-record
// lists backing config, topology and simulation state. It wraps a single
// leveldb database, keyed by record-type prefix.
package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when no record exists under a given key.
var ErrNotFound = errors.New("record not found")

// Keyed is implemented by record types with a caller-supplied uniqueness
// key: Program by name, the simulation-scoped singletons by a fixed
// "singleton" key.
type Keyed interface {
	Key() string
}

// Repository is a typed key/value store of singleton and list records. It is
// not transactional across record types: all mutations are single-record
// upserts.
type Repository struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (creating if necessary) a leveldb database at path.
func Open(path string) (*Repository, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{db: db}, nil
}

// OpenInMemory opens an ephemeral repository, for tests.
func OpenInMemory() (*Repository, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func recordKey(prefix, key string) []byte {
	return []byte(prefix + ":" + key)
}

// GetSingleton fetches the single record stored under prefix, unmarshalling
// into out. Returns ErrNotFound if absent.
func (r *Repository) GetSingleton(prefix string, out interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := r.db.Get(recordKey(prefix, "singleton"), nil)
	if err == leveldb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, out)
}

// PutSingleton persists the single record for prefix.
func (r *Repository) PutSingleton(prefix string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Put(recordKey(prefix, "singleton"), val, &opt.WriteOptions{Sync: true})
}

// PurgeSingleton removes the record stored under prefix. A missing record is
// not an error.
func (r *Repository) PurgeSingleton(prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Delete(recordKey(prefix, "singleton"), &opt.WriteOptions{Sync: true})
	if err != nil && err != leveldb.ErrNotFound {
		return err
	}
	return nil
}

// Put upserts a named record (e.g. a Program) under prefix, keyed by key.
func (r *Repository) Put(prefix, key string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Put(recordKey(prefix, key), val, &opt.WriteOptions{Sync: true})
}

// Get fetches a single named record by key.
func (r *Repository) Get(prefix, key string, out interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := r.db.Get(recordKey(prefix, key), nil)
	if err == leveldb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, out)
}

// Delete removes a named record. A missing record is not an error.
func (r *Repository) Delete(prefix, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Delete(recordKey(prefix, key), &opt.WriteOptions{Sync: true})
	if err != nil && err != leveldb.ErrNotFound {
		return err
	}
	return nil
}

// List hands the raw value of every named record under prefix, in key
// order, to unmarshal.
func (r *Repository) List(prefix string, unmarshal func(val []byte) error) error {
	return r.ForEach(prefix, func(_ string, val []byte) error {
		return unmarshal(val)
	})
}

// ForEach iterates every named record under prefix in key order, handing
// fn the bare record key (with "<prefix>:" stripped) and the raw value.
func (r *Repository) ForEach(prefix string, fn func(key string, val []byte) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rng := util.BytesPrefix([]byte(prefix + ":"))
	iter := r.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		key := StripPrefix(prefix, iter.Key())
		if err := fn(key, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// StripPrefix trims "<prefix>:" from a raw iterator key, used by callers
// that need the bare record key (e.g. program names) rather than the value.
func StripPrefix(prefix string, rawKey []byte) string {
	return strings.TrimPrefix(string(rawKey), prefix+":")
}
