package virtual

import (
	"strconv"

	"go.uber.org/zap"
)

// Options configures a Virtualizer. Zero fields take the documented defaults.
type Options struct {
	// Count is the number of logical items.
	Count int
	// EstimateSize returns the expected size of item i before it has been
	// measured. Required. It runs under the virtualizer's lock and must not
	// call back into it.
	EstimateSize func(i int) float64
	// ItemKey returns the content identity of item i. Measurements follow
	// keys, so stable keys keep sizes across inserts.
	// default: the decimal index
	ItemKey func(i int) string
	// Overscan is the number of extra items materialized on each side of
	// the visible range. Negative disables overscan.
	// default: 8
	Overscan int
	// Gap is the space between consecutive items.
	Gap float64
	// PaddingStart and PaddingEnd pad the list inside its scroll container.
	PaddingStart float64
	PaddingEnd   float64
	// ScrollMargin is the offset of the list from the top of the scroll
	// container.
	ScrollMargin float64
	// ViewportSize is the initial size of the visible area.
	ViewportSize float64
	// ProximityZone, in viewports, bounds where measured items may be
	// re-measured.
	// default: 2
	ProximityZone float64
	// Policy decides whether a mutation's scroll drift is corrected.
	// default: RestoreOnDelta{Tolerance: 5}
	Policy ScrollPolicy
	// ScrollTo is invoked when the virtualizer moves the scroll position.
	ScrollTo func(offset float64)
	// Logger receives scroll correction events.
	Logger *zap.Logger
}

const (
	defaultOverscan      = 8
	defaultProximityZone = 2
	defaultTolerance     = 5
)

func (o Options) withDefaults() Options {
	if o.ItemKey == nil {
		o.ItemKey = strconv.Itoa
	}
	switch {
	case o.Overscan == 0:
		o.Overscan = defaultOverscan
	case o.Overscan < 0:
		o.Overscan = 0
	}
	if o.ProximityZone <= 0 {
		o.ProximityZone = defaultProximityZone
	}
	if o.Policy == nil {
		o.Policy = RestoreOnDelta{Tolerance: defaultTolerance}
	}
	if o.ScrollTo == nil {
		o.ScrollTo = func(float64) {}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Count < 0 {
		o.Count = 0
	}
	return o
}
