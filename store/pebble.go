package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

// Pebble is a Backend on top of a local pebble database. Pebble has no notion
// of a quota, so the logical size (keys plus values) is tracked here and
// enforced against maxBytes.
type Pebble struct {
	db       *pebble.DB
	maxBytes int64

	mu   sync.Mutex
	used int64
}

// OpenPebble opens (or creates) a pebble database in dir. maxBytes ≤ 0 means
// unlimited.
func OpenPebble(dir string, maxBytes int64) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open pebble at %s: %w", dir, err)
	}
	p := &Pebble{db: db, maxBytes: maxBytes}

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: scan pebble: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		p.used += int64(len(iter.Key()) + len(iter.Value()))
	}
	if err := iter.Close(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: scan pebble: %w", err)
	}
	return p, nil
}

// Get implements Backend.
func (p *Pebble) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

// Set implements Backend.
func (p *Pebble) Set(_ context.Context, key string, val []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := int64(len(key) + len(val))
	old, err := p.sizeOf(key)
	if err != nil {
		return err
	}
	delta -= old
	if p.maxBytes > 0 && p.used+delta > p.maxBytes {
		return ErrQuotaExceeded
	}
	if err := p.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return err
	}
	p.used += delta
	return nil
}

// Delete implements Backend.
func (p *Pebble) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, err := p.sizeOf(key)
	if err != nil {
		return err
	}
	if old == 0 {
		return nil
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return err
	}
	p.used -= old
	return nil
}

// Keys implements Backend.
func (p *Pebble) Keys(_ context.Context, prefix string) ([]string, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := p.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close implements Backend.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// sizeOf returns the logical size of key's entry, or 0 if it is absent.
func (p *Pebble) sizeOf(key string) (int64, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := int64(len(key) + len(v))
	closer.Close()
	return n, nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
