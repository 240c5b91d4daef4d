// Package store persists application state without blocking the caller.
//
// Writes are debounced per key (last write wins), serialized once and handed
// to a single writer goroutine that applies them to a [Backend] in order.
// When the backend is full the oldest prefixed entries are evicted and the
// write is retried once; if that still fails the value is kept in memory so
// reads see it for the life of the process. Failures are never surfaced to
// the writer.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Keksclan/goRawrFeed/errkind"
	"github.com/Keksclan/goRawrFeed/metrics"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

const probeKey = "__rawrfeed_probe__"

type pendingWrite struct {
	value   any
	written time.Time
	encoded []byte
	gen     uint64
	timer   *time.Timer
}

func (pw *pendingWrite) encode() ([]byte, error) {
	if pw.encoded == nil {
		data, err := json.Marshal(pw.value)
		if err != nil {
			return nil, err
		}
		pw.encoded = data
	}
	return pw.encoded, nil
}

// op is one backend mutation. A nil data with del set removes the key.
type op struct {
	key  string
	data []byte
	del  bool
}

type batch struct {
	ops  []op
	done chan struct{}
}

// Store is a debounced write-behind layer over a Backend. All methods are
// safe for concurrent use.
type Store struct {
	backend       Backend
	prefix        string
	debounce      time.Duration
	coalesce      bool
	evictFraction float64
	log           *zap.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// flushMu orders batches: a batch is picked, encoded and queued for the
	// writer while it is held.
	flushMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]*pendingWrite
	shared    *time.Timer
	sharedGen uint64
	closed    bool

	fbMu     sync.RWMutex
	fallback map[string][]byte

	probeOnce sync.Once
	available bool

	writes    *chanx.UnboundedChan[*batch]
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a Store on backend. A nil cfg uses [DefaultConfig]. The Store
// owns backend and closes it on Close.
func New(backend Backend, cfg *Config, opts ...Option) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:       backend,
		prefix:        cfg.Prefix,
		debounce:      cfg.Debounce,
		coalesce:      cfg.CoalesceWrites,
		evictFraction: cfg.EvictFraction,
		log:           zap.NewNop(),
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		pending:       make(map[string]*pendingWrite),
		fallback:      make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.writes = chanx.NewUnboundedChan[*batch](ctx, 16)
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Prefix returns the key prefix that scopes quota eviction.
func (s *Store) Prefix() string { return s.prefix }

// Set schedules value to be written under key after the configured debounce.
func (s *Store) Set(key string, value any) {
	s.SetDebounced(key, value, s.debounce)
}

// SetDebounced schedules value to be written under key once delay has
// passed without another write to the same key. A delay ≤ 0 flushes
// immediately. Only the last value written within the window is persisted.
func (s *Store) SetDebounced(key string, value any, delay time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.keepAfterClose(key, value)
		return
	}
	pw, ok := s.pending[key]
	if !ok {
		pw = &pendingWrite{}
		s.pending[key] = pw
	}
	pw.value = value
	pw.written = s.now()
	pw.encoded = nil
	pw.gen++
	if pw.timer != nil {
		pw.timer.Stop()
		pw.timer = nil
	}

	if delay <= 0 {
		s.mu.Unlock()
		if s.coalesce {
			s.flush(s.pickAllLocked, false)
		} else {
			s.flush(func() []string { return s.pickKeyLocked(key, 0) }, false)
		}
		return
	}

	if s.coalesce {
		if s.shared != nil {
			s.shared.Stop()
		}
		s.sharedGen++
		gen := s.sharedGen
		s.shared = time.AfterFunc(delay, func() {
			s.flush(func() []string { return s.pickSharedLocked(gen) }, false)
		})
	} else {
		gen := pw.gen
		pw.timer = time.AfterFunc(delay, func() {
			s.flush(func() []string { return s.pickKeyLocked(key, gen) }, false)
		})
	}
	s.mu.Unlock()
}

// Get decodes the value stored under key into dst. It reports false when the
// key is absent or its value cannot be decoded.
func (s *Store) Get(key string, dst any) bool {
	data, ok := s.read(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("store: stored value could not be decoded",
			zap.String("key", key),
			zap.Stringer("kind", errkind.ParseError),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Load is the generic form of [Store.Get].
func Load[T any](s *Store, key string) (T, bool) {
	var v T
	if !s.Get(key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// LazyInit returns an initializer that reads key from s on each call,
// falling back to def when nothing usable is stored.
func LazyInit[T any](s *Store, key string, def T) func() T {
	return func() T {
		if v, ok := Load[T](s, key); ok {
			return v
		}
		return def
	}
}

// Remove cancels any pending write for key and deletes it from the backend
// and the in-memory fallback. It returns once the delete has been applied.
func (s *Store) Remove(key string) {
	s.flushMu.Lock()
	s.mu.Lock()
	if pw, ok := s.pending[key]; ok {
		if pw.timer != nil {
			pw.timer.Stop()
		}
		delete(s.pending, key)
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		s.flushMu.Unlock()
		s.dropFallback(key)
		return
	}
	b := &batch{ops: []op{{key: key, del: true}}, done: make(chan struct{})}
	s.writes.In <- b
	s.flushMu.Unlock()
	<-b.done
}

// ForceFlush writes every pending value and blocks until the writer has
// applied them, along with anything queued before.
func (s *Store) ForceFlush() {
	s.flush(s.pickAllLocked, true)
}

// Pending returns the number of keys waiting for their debounce to elapse.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Keys lists the durable keys under the store prefix.
func (s *Store) Keys() ([]string, error) {
	return s.backend.Keys(s.ctx, s.prefix)
}

// IsAvailable reports whether the backend accepted a probe write. The probe
// runs once and its result is cached.
func (s *Store) IsAvailable() bool {
	s.probeOnce.Do(func() {
		err := s.backend.Set(s.ctx, probeKey, []byte("1"))
		if err == nil {
			err = s.backend.Delete(s.ctx, probeKey)
		}
		// A full backend is still a working one.
		s.available = err == nil || IsQuotaExceeded(err)
		if !s.available {
			s.log.Warn("store: backend unavailable, values are kept in memory",
				zap.Stringer("kind", errkind.StorageUnavailable),
				zap.Error(err),
			)
		}
	})
	return s.available
}

// Close flushes pending writes, stops the writer and closes the backend.
// Values set afterwards are only kept in memory.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.ForceFlush()

		s.flushMu.Lock()
		s.mu.Lock()
		s.closed = true
		if s.shared != nil {
			s.shared.Stop()
		}
		late := s.pending
		s.pending = make(map[string]*pendingWrite)
		s.mu.Unlock()
		close(s.writes.In)
		s.flushMu.Unlock()

		s.wg.Wait()
		for key, pw := range late {
			if pw.timer != nil {
				pw.timer.Stop()
			}
			s.keepAfterClose(key, pw.value)
		}
		s.cancel()
		err = s.backend.Close()
	})
	return err
}

// flush hands the pending writes chosen by pick to the writer. pick runs
// with s.mu held and returns keys present in s.pending.
func (s *Store) flush(pick func() []string, wait bool) {
	s.flushMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.flushMu.Unlock()
		return
	}
	keys := pick()
	writes := make([]*pendingWrite, len(keys))
	for i, k := range keys {
		pw := s.pending[k]
		if pw.timer != nil {
			pw.timer.Stop()
		}
		delete(s.pending, k)
		writes[i] = pw
	}
	s.mu.Unlock()

	b := &batch{}
	for i, pw := range writes {
		data, err := pw.encode()
		if err != nil {
			s.log.Warn("store: value could not be encoded, dropping write",
				zap.Error(ErrEncode(keys[i], err)),
			)
			metrics.IncStoreWrite("encode_error")
			continue
		}
		b.ops = append(b.ops, op{key: keys[i], data: data})
	}
	if wait {
		b.done = make(chan struct{})
	}
	if len(b.ops) > 0 {
		metrics.IncStoreFlush()
	}
	if len(b.ops) > 0 || wait {
		s.writes.In <- b
	}
	s.flushMu.Unlock()

	if wait {
		<-b.done
	}
}

func (s *Store) pickKeyLocked(key string, gen uint64) []string {
	pw, ok := s.pending[key]
	if !ok || (gen != 0 && pw.gen != gen) {
		return nil
	}
	return []string{key}
}

func (s *Store) pickSharedLocked(gen uint64) []string {
	if gen != s.sharedGen {
		return nil
	}
	return s.pickAllLocked()
}

func (s *Store) pickAllLocked() []string {
	if s.shared != nil {
		s.shared.Stop()
		s.shared = nil
	}
	s.sharedGen++
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for b := range s.writes.Out {
		for _, o := range b.ops {
			if o.del {
				s.delete(o.key)
			} else {
				s.write(o.key, o.data)
			}
		}
		if b.done != nil {
			close(b.done)
		}
	}
}

func (s *Store) write(key string, data []byte) {
	if !s.IsAvailable() {
		s.keepInMemory(key, data, errkind.ErrStorageUnavailable)
		return
	}
	err := s.backend.Set(s.ctx, key, data)
	if IsQuotaExceeded(err) {
		if s.EvictOldest() == 0 {
			s.keepInMemory(key, data, err)
			return
		}
		if err = s.backend.Set(s.ctx, key, data); err == nil {
			s.dropFallback(key)
			metrics.IncStoreWrite("retried")
			return
		}
	}
	if err != nil {
		s.keepInMemory(key, data, err)
		return
	}
	s.dropFallback(key)
	metrics.IncStoreWrite("ok")
}

func (s *Store) delete(key string) {
	s.dropFallback(key)
	if !s.IsAvailable() {
		return
	}
	if err := s.backend.Delete(s.ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("store: delete failed", zap.String("key", key), zap.Error(err))
	}
}

// read prefers the fallback, which only ever holds values newer than their
// durable copy.
func (s *Store) read(key string) ([]byte, bool) {
	s.fbMu.RLock()
	data, ok := s.fallback[key]
	s.fbMu.RUnlock()
	if ok {
		return data, true
	}
	if !s.IsAvailable() {
		return nil, false
	}
	data, err := s.backend.Get(s.ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Debug("store: backend read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (s *Store) keepInMemory(key string, data []byte, cause error) {
	s.fbMu.Lock()
	s.fallback[key] = data
	s.fbMu.Unlock()
	metrics.IncStoreWrite("fallback")
	s.log.Warn("store: durable write failed, value kept in memory",
		zap.String("key", key),
		zap.Stringer("kind", errkind.KindOf(cause)),
		zap.Error(cause),
	)
}

func (s *Store) keepAfterClose(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("store: value could not be encoded, dropping write", zap.Error(ErrEncode(key, err)))
		return
	}
	s.keepInMemory(key, data, ErrClosed)
}

func (s *Store) dropFallback(key string) {
	s.fbMu.Lock()
	delete(s.fallback, key)
	s.fbMu.Unlock()
}
