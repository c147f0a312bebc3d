// Package store persists chats, messages, leads and the user/car directory
// in pebble.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"dealerchat/pkg/logger"
)

var (
	// ErrNotFound is returned for missing or soft-deleted records.
	ErrNotFound = errors.New("store: not found")
	// ErrChatClosed is returned when a closed chat is mutated.
	ErrChatClosed = errors.New("store: chat closed")
	// ErrConflict is returned when a unique record already exists.
	ErrConflict = errors.New("store: conflict")
	errNotOpen  = errors.New("pebble not opened; call store.Open first")
)

// DB wraps a pebble handle plus per-key write locks.
type DB struct {
	db    *pebble.DB
	path  string
	locks keyLocks
	// seq breaks timestamp ties between messages written in the same nanosecond.
	seq atomic.Uint64
	now func() time.Time
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*DB, error) {
	logger.Info("opening_pebble_db", "path", path)
	pdb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &DB{db: pdb, path: path, now: time.Now}, nil
}

// Close closes the database. It is safe to call on a closed DB.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return err
	}
	d.db = nil
	logger.Info("pebble_closed", "path", d.path)
	return nil
}

// Ready reports whether the store is opened and ready.
func (d *DB) Ready() bool { return d != nil && d.db != nil }

// Path returns the on-disk location.
func (d *DB) Path() string { return d.path }

// SetClock overrides the time source.
func (d *DB) SetClock(now func() time.Time) { d.now = now }

func (d *DB) nowNanos() int64 { return d.now().UTC().UnixNano() }

type deletable interface {
	IsDeleted() bool
}

func getJSON[T any](d *DB, key string) (T, error) {
	var out T
	if !d.Ready() {
		return out, errNotOpen
	}
	v, closer, err := d.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// getLive is getJSON that also hides soft-deleted records.
func getLive[T deletable](d *DB, key string) (T, error) {
	v, err := getJSON[T](d, key)
	if err != nil {
		return v, err
	}
	if v.IsDeleted() {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

func putJSON(d *DB, key string, v any) error {
	if !d.Ready() {
		return errNotOpen
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("pebble_set_failed", "key", key, "error", err)
		return err
	}
	return nil
}

func batchJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

// scanJSON visits every record under prefix in key order.
func scanJSON[T any](d *DB, prefix string, fn func(key []byte, v T) error) error {
	if !d.Ready() {
		return errNotOpen
	}
	pfx := []byte(prefix)
	iter, err := d.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if err := fn(append([]byte(nil), iter.Key()...), v); err != nil {
			return err
		}
	}
	return iter.Error()
}

// mutate applies fn to the live record at key under the key's lock.
func mutate[T deletable](d *DB, key string, fn func(*T) error) (T, error) {
	unlock := d.locks.lock(key)
	defer unlock()
	v, err := getLive[T](d, key)
	if err != nil {
		return v, err
	}
	if err := fn(&v); err != nil {
		return v, err
	}
	return v, putJSON(d, key, v)
}

// ListKeys returns raw keys under prefix; an empty prefix lists everything.
func (d *DB) ListKeys(prefix string) ([]string, error) {
	if !d.Ready() {
		return nil, errNotOpen
	}
	iter, err := d.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}

// GetKey returns the raw value stored at key.
func (d *DB) GetKey(key string) ([]byte, error) {
	if !d.Ready() {
		return nil, errNotOpen
	}
	v, closer, err := d.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release func.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*keyLock)
	}
	l := k.m[key]
	if l == nil {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func decode[T any](v []byte) (T, error) {
	var out T
	err := json.Unmarshal(v, &out)
	return out, err
}
