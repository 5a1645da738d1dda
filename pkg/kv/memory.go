package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and the dev server.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func (e memEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := key.encode()
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.data[string(k)]
	m.mu.RUnlock()
	if !ok || !e.live(m.now()) {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.val), nil
}

func (m *Memory) Put(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	k, err := key.encode()
	if err != nil {
		return err
	}
	e := memEntry{val: bytes.Clone(value)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.data[string(k)] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k, err := key.encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, string(k))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Scan(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		p, err := prefix.prefix()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		now := m.now()
		m.mu.RLock()
		var keys []string
		for k, e := range m.data {
			if strings.HasPrefix(k, string(p)) && e.live(now) {
				keys = append(keys, k)
			}
		}
		snapshot := make(map[string][]byte, len(keys))
		for _, k := range keys {
			snapshot[k] = bytes.Clone(m.data[k].val)
		}
		m.mu.RUnlock()

		slices.Sort(keys)
		for _, k := range keys {
			if !yield(Entry{Key: decodeKey([]byte(k)), Value: snapshot[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }
