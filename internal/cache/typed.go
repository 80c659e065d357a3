package cache

import "context"

// Fetch is a typed read through the store. It reports the value, whether a
// value exists at all, and any fetch error; a fetch failure with a previous
// cached value returns both, letting the caller serve last-known-good data
// while still seeing the error.
func Fetch[T any](ctx context.Context, s *Store, key Key, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	res, err := s.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if !res.HasValue {
		var zero T
		return zero, false, err
	}
	v, ok := res.Value.(T)
	if !ok {
		var zero T
		return zero, false, err
	}
	return v, true, err
}
