// Package kv is the key-value store behind session transcripts.
//
// Keys are paths of segments joined by '/'. Values may carry a time to live
// after which they disappear from Get and Scan.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("kv: not found")

// ErrBadKey is returned for keys with empty segments or segments containing
// the separator.
var ErrBadKey = errors.New("kv: bad key")

const sep = "/"

// Key is a path such as {"transcript", "<session>", "00000001"}.
type Key []string

func (k Key) String() string { return strings.Join(k, sep) }

func (k Key) encode() ([]byte, error) {
	for _, s := range k {
		if s == "" || strings.Contains(s, sep) {
			return nil, ErrBadKey
		}
	}
	return []byte(k.String()), nil
}

// prefix returns the encoded key followed by the separator, so that scanning
// {"a","b"} does not match "a/bc". An empty key scans everything.
func (k Key) prefix() ([]byte, error) {
	if len(k) == 0 {
		return nil, nil
	}
	p, err := k.encode()
	if err != nil {
		return nil, err
	}
	return append(p, sep...), nil
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), sep))
}

// Entry is a stored pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	// Put stores value under key. A positive ttl expires the entry.
	Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
	// Scan yields entries under prefix in lexicographic key order.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}
