// Package virtual lays out very large ordered lists by materializing only
// the items around the viewport.
//
// Item sizes start as estimates and are replaced by real measurements as
// items are rendered. Offsets are a prefix sum over sizes and gaps, rebuilt
// on every measurement. Measurements are keyed by item identity, so they
// survive inserts and are dropped when an identity disappears.
package virtual

import (
	"math"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// SizeState tells whether an item's size is an estimate or a measurement.
type SizeState int

const (
	Estimated SizeState = iota
	Measured
)

func (s SizeState) String() string {
	if s == Measured {
		return "measured"
	}
	return "estimated"
}

// Item is one materialized entry of the list.
type Item struct {
	Index int
	Key   string
	Start float64
	End   float64
	Size  float64
	State SizeState
}

// Anchor is the scroll position recorded before a mutation.
type Anchor struct {
	Offset float64
	// Key identifies the first visible item at the time of recording.
	Key string
}

// Virtualizer computes the visible window of a list. All methods are safe for
// concurrent use. ScrollTo is never called with the internal lock held.
type Virtualizer struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	keys     []string
	sizes    []float64
	states   []SizeState
	starts   []float64
	measured map[string]float64
	// immediate holds appended items that accept a measurement regardless
	// of their position.
	immediate map[int]struct{}
	offset    float64
	viewport  float64
	anchor    *Anchor
}

// New creates a Virtualizer. It panics if opts.EstimateSize is nil.
func New(opts Options) *Virtualizer {
	if opts.EstimateSize == nil {
		panic("virtual: Options.EstimateSize is required")
	}
	opts = opts.withDefaults()
	v := &Virtualizer{
		opts:      opts,
		log:       opts.Logger,
		measured:  make(map[string]float64),
		immediate: make(map[int]struct{}),
		viewport:  opts.ViewportSize,
	}
	v.keys = make([]string, opts.Count)
	for i := range v.keys {
		v.keys[i] = opts.ItemKey(i)
	}
	v.layoutLocked()
	return v
}

// layoutLocked rebuilds sizes, states and offsets from the keys.
func (v *Virtualizer) layoutLocked() {
	n := len(v.keys)
	v.sizes = slices.Grow(v.sizes[:0], n)[:n]
	v.states = slices.Grow(v.states[:0], n)[:n]
	v.starts = slices.Grow(v.starts[:0], n)[:n]

	next := v.opts.PaddingStart + v.opts.ScrollMargin
	for i, key := range v.keys {
		if size, ok := v.measured[key]; ok {
			v.sizes[i], v.states[i] = size, Measured
		} else {
			v.sizes[i], v.states[i] = v.opts.EstimateSize(i), Estimated
		}
		v.starts[i] = next
		next += v.sizes[i] + v.opts.Gap
	}
}

func (v *Virtualizer) itemLocked(i int) Item {
	return Item{
		Index: i,
		Key:   v.keys[i],
		Start: v.starts[i],
		End:   v.starts[i] + v.sizes[i],
		Size:  v.sizes[i],
		State: v.states[i],
	}
}

// Count returns the number of logical items.
func (v *Virtualizer) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.keys)
}

// Item returns the layout of item i.
func (v *Virtualizer) Item(i int) (Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.keys) {
		return Item{}, false
	}
	return v.itemLocked(i), true
}

// VisibleRange returns the first and last index intersecting the viewport,
// or ok=false when nothing does.
func (v *Virtualizer) VisibleRange() (first, last int, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visibleLocked()
}

func (v *Virtualizer) visibleLocked() (int, int, bool) {
	n := len(v.keys)
	if n == 0 {
		return 0, 0, false
	}
	lo, hi := v.offset, v.offset+v.viewport
	first := sort.Search(n, func(i int) bool { return v.starts[i]+v.sizes[i] > lo })
	last := sort.Search(n, func(i int) bool { return v.starts[i] >= hi }) - 1
	if first >= n || last < first {
		return 0, 0, false
	}
	return first, last, true
}

// VirtualItems returns the items to materialize: the visible range extended
// by Overscan items on each side.
func (v *Virtualizer) VirtualItems() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()

	first, last, ok := v.visibleLocked()
	if !ok {
		return nil
	}
	from := max(0, first-v.opts.Overscan)
	to := min(len(v.keys)-1, last+v.opts.Overscan)
	items := make([]Item, 0, to-from+1)
	for i := from; i <= to; i++ {
		items = append(items, v.itemLocked(i))
	}
	return items
}

// TotalSize returns the scrollable length of the list.
func (v *Virtualizer) TotalSize() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := len(v.keys)
	if n == 0 {
		return v.opts.PaddingStart + v.opts.PaddingEnd
	}
	return v.starts[n-1] + v.sizes[n-1] - v.opts.ScrollMargin + v.opts.PaddingEnd
}

// ScrollOffset returns the current scroll offset.
func (v *Virtualizer) ScrollOffset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// SetScrollOffset records a scroll position reported by the host.
func (v *Virtualizer) SetScrollOffset(offset float64) {
	v.mu.Lock()
	v.offset = offset
	v.mu.Unlock()
}

// SetViewportSize records the size of the visible area.
func (v *Virtualizer) SetViewportSize(size float64) {
	v.mu.Lock()
	v.viewport = size
	v.mu.Unlock()
}

// MeasureElement records the rendered size of item i and reports whether the
// layout changed.
//
// The first measurement of an item always applies. A measured item is only
// re-measured while it lies within ProximityZone viewports of the visible
// area. Items appended by SetCount or SetKeys accept their first measurement
// regardless of position and never move the scroll offset. When an item that
// starts above the scroll offset changes size, the offset shifts by the same
// amount so the visible content stays put.
func (v *Virtualizer) MeasureElement(i int, size float64) bool {
	if size < 0 || math.IsNaN(size) {
		return false
	}
	v.mu.Lock()
	if i < 0 || i >= len(v.keys) {
		v.mu.Unlock()
		return false
	}
	key := v.keys[i]
	_, appended := v.immediate[i]
	delete(v.immediate, i)

	prev, wasMeasured := v.measured[key]
	if wasMeasured && (prev == size || !v.nearLocked(i)) {
		v.mu.Unlock()
		return false
	}

	old := v.sizes[i]
	above := v.starts[i] < v.offset
	v.measured[key] = size
	v.layoutLocked()

	var scrollTo float64
	adjust := above && !appended && size != old
	if adjust {
		v.offset += size - old
		scrollTo = v.offset
	}
	v.mu.Unlock()

	if adjust {
		v.log.Debug("virtual: scroll adjusted for resized item above viewport",
			zap.Int("index", i),
			zap.Float64("delta", size-old),
		)
		v.opts.ScrollTo(scrollTo)
	}
	return true
}

// nearLocked reports whether item i intersects the proximity zone around the
// viewport.
func (v *Virtualizer) nearLocked(i int) bool {
	zone := v.opts.ProximityZone * v.viewport
	lo, hi := v.offset-zone, v.offset+v.viewport+zone
	return v.starts[i]+v.sizes[i] > lo && v.starts[i] < hi
}

// SetCount changes the number of items with index-derived keys. Growth at
// the tail keeps every earlier offset and never scrolls; the new items are
// queued for immediate measurement.
func (v *Virtualizer) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	old := len(v.keys)
	switch {
	case n > old:
		for i := old; i < n; i++ {
			v.keys = append(v.keys, v.opts.ItemKey(i))
			v.immediate[i] = struct{}{}
		}
	case n < old:
		v.keys = v.keys[:n]
		for i := range v.immediate {
			if i >= n {
				delete(v.immediate, i)
			}
		}
		v.forgetMissingLocked()
	}
	v.layoutLocked()
}

// SetKeys replaces the item identities. Measurements follow their key to its
// new index; an index whose identity changed reverts to its estimate. Keys
// added past the previous end are queued for immediate measurement.
func (v *Virtualizer) SetKeys(keys []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[string]struct{}, len(v.keys))
	for _, k := range v.keys {
		seen[k] = struct{}{}
	}
	old := len(v.keys)
	v.keys = slices.Clone(keys)
	clear(v.immediate)
	for i := old; i < len(keys); i++ {
		if _, ok := seen[keys[i]]; !ok {
			v.immediate[i] = struct{}{}
		}
	}
	v.forgetMissingLocked()
	v.layoutLocked()
}

func (v *Virtualizer) forgetMissingLocked() {
	live := make(map[string]struct{}, len(v.keys))
	for _, k := range v.keys {
		live[k] = struct{}{}
	}
	for k := range v.measured {
		if _, ok := live[k]; !ok {
			delete(v.measured, k)
		}
	}
}

// PendingMeasurements returns the indexes waiting for their immediate first
// measurement, in ascending order.
func (v *Virtualizer) PendingMeasurements() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]int, 0, len(v.immediate))
	for i := range v.immediate {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// BeginMutation records the scroll position ahead of a mutation that may
// move content above the viewport, such as a prepend.
func (v *Virtualizer) BeginMutation() Anchor {
	v.mu.Lock()
	defer v.mu.Unlock()
	a := Anchor{Offset: v.offset}
	if first, _, ok := v.visibleLocked(); ok {
		a.Key = v.keys[first]
	}
	v.anchor = &a
	return a
}

// CommitMutation compares the scroll offset reported after the mutation with
// the recorded one and lets the policy decide whether to restore it. A
// recording is consumed by its first commit, so a drift is corrected at most
// once. It reports whether a correction was issued.
func (v *Virtualizer) CommitMutation(current float64) bool {
	v.mu.Lock()
	v.offset = current
	a := v.anchor
	v.anchor = nil
	if a == nil {
		v.mu.Unlock()
		return false
	}
	target, ok := v.opts.Policy.Correct(a.Offset, current)
	if ok {
		v.offset = target
	}
	v.mu.Unlock()

	if !ok {
		return false
	}
	v.log.Debug("virtual: restoring scroll offset after mutation",
		zap.Float64("recorded", a.Offset),
		zap.Float64("current", current),
		zap.String("anchor", a.Key),
	)
	v.opts.ScrollTo(target)
	return true
}
