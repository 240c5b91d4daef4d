package gorawrfeed

import "fmt"

// ErrUnknownBackend reports an unsupported backend kind.
func ErrUnknownBackend(kind string) error {
	return fmt.Errorf("rawrfeed: unknown backend %q, must be one of memory, pebble, redis, file", kind)
}

// ErrMissingBackendPath reports a file-based backend without a directory.
func ErrMissingBackendPath(kind string) error {
	return fmt.Errorf("rawrfeed: backend %q requires a path", kind)
}

// ErrMissingRedisAddr reports a redis backend without an address.
func ErrMissingRedisAddr() error {
	return fmt.Errorf("rawrfeed: backend \"redis\" requires redis_addr")
}

// ErrInvalidSchedule wraps a prune schedule the cron parser rejected.
func ErrInvalidSchedule(spec string, err error) error {
	if err == nil {
		return fmt.Errorf("rawrfeed: invalid prune schedule %q", spec)
	}
	return fmt.Errorf("rawrfeed: invalid prune schedule %q: %w", spec, err)
}

// ErrReadConfig wraps a failure to load configuration.
func ErrReadConfig(path string, err error) error {
	return fmt.Errorf("rawrfeed: failed to read config %q: %w", path, err)
}

// ErrOpenBackend wraps a failure to open the durable backend.
func ErrOpenBackend(kind string, err error) error {
	return fmt.Errorf("rawrfeed: failed to open %s backend: %w", kind, err)
}
