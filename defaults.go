package gorawrfeed

import (
	"time"

	"github.com/Keksclan/goRawrFeed/policy"
)

// DefaultPolicies returns the key policies of a typical social feed client.
// Keys follow the "<resource>:<id>:<params>" convention.
func DefaultPolicies() *policy.Resolver {
	r, _ := policy.NewResolver(
		policy.Policy{TTL: time.Minute, StaleWindow: 5 * time.Minute, ReadOnly: true},
		policy.Group("feed").
			Prefix("feed:").
			Use(policy.Policy{TTL: 30 * time.Second, StaleWindow: 5 * time.Minute, ReadOnly: true}),
		policy.Group("profile").
			Prefix("profile:").
			Use(policy.Policy{TTL: 5 * time.Minute, StaleWindow: time.Hour, ReadOnly: true}),
		policy.Group("thread").
			Prefix("thread:").
			Use(policy.Policy{TTL: time.Minute, StaleWindow: 10 * time.Minute, ReadOnly: true}),
		policy.Group("notifications").
			Prefix("notifications:").
			Use(policy.Policy{NoCache: true, ReadOnly: true, Timeout: 10 * time.Second}),
	)
	return r
}
