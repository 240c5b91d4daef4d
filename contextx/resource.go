package contextx

import "context"

// WithResource returns a derived context naming the resource being fetched.
func WithResource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, resourceKey, name)
}

// ResourceFromContext extracts the resource name stored in ctx.
// It returns an empty string when none is present.
func ResourceFromContext(ctx context.Context) string {
	r, _ := ctx.Value(resourceKey).(string)
	return r
}
