package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens a store in dir. An empty dir opens an in-memory store.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithLogger(slogLogger{logger.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := key.encode()
	if err != nil {
		return nil, err
	}
	var val []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Put(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	k, err := key.encode()
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(k, value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	k, err := key.encode()
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *Badger) Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		p, err := prefix.prefix()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		stopped := false
		err = b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = p
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if !yield(Entry{Key: decodeKey(item.KeyCopy(nil)), Value: val}, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) Close() error { return b.db.Close() }

// slogLogger routes badger's log output to slog. Info and debug are demoted
// to debug since badger is chatty at startup.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Errorf(f string, v ...any)   { s.l.Error(fmt.Sprintf(f, v...)) }
func (s slogLogger) Warningf(f string, v ...any) { s.l.Warn(fmt.Sprintf(f, v...)) }
func (s slogLogger) Infof(f string, v ...any)    { s.l.Debug(fmt.Sprintf(f, v...)) }
func (s slogLogger) Debugf(f string, v ...any)   { s.l.Debug(fmt.Sprintf(f, v...)) }
