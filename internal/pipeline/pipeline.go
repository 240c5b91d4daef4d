// Package pipeline assembles the per-attempt interceptor chain of a
// resource in a deterministic order.
package pipeline

import (
	"cmp"
	"slices"

	"github.com/Keksclan/goRawrFeed/interceptors"
)

// Positions of the built-in stages. Lower values run first.
const (
	OrderBreaker   = 10
	OrderRateLimit = 20
	OrderTimeout   = 30
	OrderUser      = 40
	OrderRecovery  = 50
)

// stage is a single interceptor with its execution order.
type stage[T any] struct {
	ic    interceptors.Interceptor[T]
	order int
}

// Builder collects interceptors and produces them sorted for chaining.
type Builder[T any] struct {
	stages []stage[T]
}

// Add registers ic at the given order. A nil ic is ignored.
func (b *Builder[T]) Add(order int, ic interceptors.Interceptor[T]) {
	if ic == nil {
		return
	}
	b.stages = append(b.stages, stage[T]{ic: ic, order: order})
}

// Build sorts the collected interceptors by order (stable) and chains them.
func (b *Builder[T]) Build() interceptors.Interceptor[T] {
	slices.SortStableFunc(b.stages, func(a, c stage[T]) int {
		return cmp.Compare(a.order, c.order)
	})
	out := make([]interceptors.Interceptor[T], len(b.stages))
	for i, s := range b.stages {
		out[i] = s.ic
	}
	return interceptors.Chain(out)
}
