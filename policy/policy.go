// Package policy resolves a fetch key such as "feed:<uri>:<limit>:<cursor>"
// to the caching and retry policy of the resource family it belongs to.
//
// Keys are matched against named groups of rules. Exact rules beat prefix
// rules, which beat regular expressions; among rules of the same kind the
// longer match wins, and ties go to the group registered first.
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Keksclan/goRawrFeed/ratelimit"
)

// Policy is what a matched key family gets.
type Policy struct {
	// TTL is how long a cached value counts as fresh. Zero means the
	// cache's default.
	TTL time.Duration `mapstructure:"ttl"`
	// StaleWindow is how long past TTL a value may still be served while
	// it is refreshed in the background.
	StaleWindow time.Duration `mapstructure:"stale_window"`
	// Timeout bounds a single fetch attempt. Zero means none.
	Timeout time.Duration `mapstructure:"timeout"`
	// ReadOnly marks idempotent reads, which also retry rate-limited
	// responses.
	ReadOnly bool `mapstructure:"read_only"`
	// NoCache skips the cache for both lookups and stores.
	NoCache bool `mapstructure:"no_cache"`
	// RateLimit, when set, paces the group's upstream calls with its own
	// token bucket instead of the resource-wide one.
	RateLimit *ratelimit.Config `mapstructure:"rate_limit"`
}

type matchKind int

const (
	kindExact matchKind = iota
	kindPrefix
	kindRegex
)

type rule struct {
	kind    matchKind
	pattern string
	re      *regexp.Regexp
}

// match reports whether r matches key and the length of the matched part.
func (r rule) match(key string) (bool, int) {
	switch r.kind {
	case kindExact:
		if key == r.pattern {
			return true, len(r.pattern)
		}
	case kindPrefix:
		if strings.HasPrefix(key, r.pattern) {
			return true, len(r.pattern)
		}
	case kindRegex:
		if loc := r.re.FindStringIndex(key); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}

// GroupBuilder collects the rules of one key family.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy Policy
	err    error
}

// Group starts a key family with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact matches key exactly.
func (g *GroupBuilder) Exact(key string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: key})
	return g
}

// Prefix matches every key starting with prefix.
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: prefix})
	return g
}

// Regex matches keys containing a match of expr. An invalid expression is
// reported by NewResolver.
func (g *GroupBuilder) Regex(expr string) *GroupBuilder {
	re, err := regexp.Compile(expr)
	if err != nil {
		if g.err == nil {
			g.err = fmt.Errorf("policy: group %q: invalid regex %q: %w", g.name, expr, err)
		}
		return g
	}
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: expr, re: re})
	return g
}

// Use attaches p to the group.
func (g *GroupBuilder) Use(p Policy) *GroupBuilder {
	g.policy = p
	return g
}

// Resolver maps keys to policies.
type Resolver struct {
	fallback Policy
	groups   []*GroupBuilder
}

// NewResolver builds a Resolver. Keys matching no group get fallback.
func NewResolver(fallback Policy, groups ...*GroupBuilder) (*Resolver, error) {
	for _, g := range groups {
		if g.err != nil {
			return nil, g.err
		}
	}
	return &Resolver{fallback: fallback, groups: groups}, nil
}

// Resolve returns the best-matching group name and its policy. When no group
// matches it returns "" and the fallback policy.
func (r *Resolver) Resolve(key string) (string, Policy) {
	if r == nil {
		return "", Policy{}
	}
	var (
		best     *GroupBuilder
		bestKind matchKind
		bestLen  = -1
	)
	for _, g := range r.groups {
		for _, ru := range g.rules {
			ok, n := ru.match(key)
			if !ok {
				continue
			}
			if best == nil || ru.kind < bestKind || (ru.kind == bestKind && n > bestLen) {
				best, bestKind, bestLen = g, ru.kind, n
			}
		}
	}
	if best == nil {
		return "", r.fallback
	}
	return best.name, best.policy
}
