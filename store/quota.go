package store

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/Keksclan/goRawrFeed/metrics"
	"go.uber.org/zap"
)

type agedKey struct {
	key string
	ts  float64
}

// EvictOldest deletes the oldest share of keys under the store prefix,
// ordered by each value's top-level "timestamp" field (missing or
// unparseable counts as 0, ties broken by key). It returns how many keys
// were removed.
func (s *Store) EvictOldest() int {
	keys, err := s.backend.Keys(s.ctx, s.prefix)
	if err != nil {
		s.log.Warn("store: listing keys for eviction failed", zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	aged := make([]agedKey, 0, len(keys))
	for _, k := range keys {
		var ts float64
		if data, err := s.backend.Get(s.ctx, k); err == nil {
			ts = timestampOf(data)
		}
		aged = append(aged, agedKey{key: k, ts: ts})
	}
	slices.SortFunc(aged, func(a, b agedKey) int {
		if c := cmp.Compare(a.ts, b.ts); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	n := int(math.Ceil(float64(len(aged)) * s.evictFraction))
	removed := 0
	for _, a := range aged[:n] {
		if err := s.backend.Delete(s.ctx, a.key); err != nil {
			s.log.Warn("store: eviction delete failed", zap.String("key", a.key), zap.Error(err))
			continue
		}
		removed++
	}
	metrics.AddStoreQuotaEvictions(removed)
	s.log.Warn("store: quota exceeded, evicted oldest entries",
		zap.Int("evicted", removed),
		zap.Int("candidates", len(aged)),
	)
	return removed
}

func timestampOf(data []byte) float64 {
	var probe struct {
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Timestamp == nil {
		return 0
	}
	return *probe.Timestamp
}
