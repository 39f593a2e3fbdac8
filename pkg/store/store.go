// Package store persists conversations, messages and action configs in
// Pebble and pushes full ordered message snapshots to subscribers.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"chatstream/pkg/logger"
	"chatstream/pkg/store/keys"
)

var ErrNotFound = errors.New("not found")

// ErrInvalid marks rejected input: malformed ids, roles or attachments.
var ErrInvalid = keys.ErrInvalidID

// DB is the conversation store.
type DB struct {
	db   *pebble.DB
	path string
	hub  *hub

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open opens or creates the store at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("store_opened", "path", path)
	return &DB{db: db, path: path, hub: newHub(), locks: make(map[string]*sync.Mutex)}, nil
}

// Close ends all subscriptions and closes the database.
func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.hub.closeAll(nil)
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *DB) Path() string { return s.path }

// lockFor returns the write lock for a conversation.
func (s *DB) lockFor(convID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.locks[convID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[convID] = l
	return l
}

func (s *DB) dropLock(convID string) {
	s.locksMu.Lock()
	delete(s.locks, convID)
	s.locksMu.Unlock()
}

func (s *DB) ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return ctx.Err()
}

func (s *DB) getJSON(key string, v any) error {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, v)
}

func (s *DB) getRaw(key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// scan calls fn for every key with prefix in order. Key and value are only
// valid during the call.
func (s *DB) scan(prefix string, fn func(k, v []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: keys.PrefixEnd(p)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}
