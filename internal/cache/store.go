// Package cache is the read-through cache that fronts the upstream HR API.
// It serves paginated list and detail reads keyed by their filter parameters,
// de-duplicates concurrent fetches, keeps previous pages visible during
// refetch, and applies mutations optimistically with full rollback when the
// upstream rejects them.
//
// A Store is constructor-injected, never package-level state, so tests build
// isolated instances; production wires exactly one per process.
package cache

import (
	"context"
	"sync"
	"time"
)

// FetchFunc loads the authoritative value for a key from the upstream.
type FetchFunc func(ctx context.Context) (any, error)

// Options tune freshness and eviction. The zero value disables staleness
// (everything is immediately stale) so callers are expected to set StaleAfter.
type Options struct {
	// StaleAfter is how long a fetched value is served without refetching.
	StaleAfter time.Duration
	// EvictAfter is the inactivity window after which Sweep drops an entry.
	EvictAfter time.Duration
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Store holds one cache entry per key. All state transitions happen under a
// single mutex; fetches and upstream calls run outside it, so readers only
// ever observe an entry fully before or fully after a transition.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	opts    Options
}

type entry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	lastUsed  time.Time
	stale     bool // explicit invalidation mark

	// gen tags the latest issued fetch or applied patch for the key. A
	// resolving fetch whose generation was superseded discards its result
	// instead of overwriting newer state.
	gen      uint64
	inflight *flight

	// writeCh serializes mutations touching this key as their primary
	// target: a second write queues behind the in-flight one instead of
	// racing its rollback. The token lives in the channel when free.
	writeCh chan struct{}
}

type flight struct {
	done chan struct{}
	val  any
	err  error
}

// Result is what a read observes: the value, whether one exists at all, and
// whether it is a previous value being served while a refetch is in flight.
type Result struct {
	Value      any
	HasValue   bool
	Refreshing bool
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{entries: make(map[Key]*entry), opts: opts}
}

// Get serves a read for key. A fresh entry within its staleness window is
// returned without invoking fetcher. A stale or empty entry triggers exactly
// one fetch however many readers ask concurrently; readers that already have
// a previous value keep it while the fetch runs, readers without one wait.
// A failed fetch leaves the entry as it was and returns the error alongside
// whatever previous value exists.
func (s *Store) Get(ctx context.Context, key Key, fetcher FetchFunc) (Result, error) {
	s.mu.Lock()
	e := s.ensure(key)
	e.lastUsed = s.opts.Now()

	if e.hasValue && !e.stale && s.opts.Now().Sub(e.fetchedAt) < s.opts.StaleAfter {
		res := Result{Value: e.value, HasValue: true}
		s.mu.Unlock()
		return res, nil
	}

	if f := e.inflight; f != nil {
		// Someone else is already fetching this key.
		if e.hasValue {
			res := Result{Value: e.value, HasValue: true, Refreshing: true}
			s.mu.Unlock()
			return res, nil
		}
		s.mu.Unlock()
		return s.await(ctx, key, f)
	}

	e.gen++
	gen := e.gen
	f := &flight{done: make(chan struct{})}
	e.inflight = f
	prev := Result{Value: e.value, HasValue: e.hasValue}
	s.mu.Unlock()

	val, err := fetcher(ctx)

	s.mu.Lock()
	f.val, f.err = val, err
	close(f.done)
	if cur, ok := s.entries[key]; ok {
		if cur.inflight == f {
			cur.inflight = nil
		}
		// A superseding invalidation or patch bumped gen while we were
		// fetching; this result is no longer trustworthy for the cache.
		if cur.gen == gen && err == nil {
			cur.value = val
			cur.hasValue = true
			cur.stale = false
			cur.fetchedAt = s.opts.Now()
		}
	}
	s.mu.Unlock()

	if err != nil {
		// Previous data, if any, stays visible; the caller decides whether
		// the failure needs surfacing past its own logs.
		return prev, err
	}
	return Result{Value: val, HasValue: true}, nil
}

// await blocks a reader that has no previous value until the shared in-flight
// fetch settles.
func (s *Store) await(ctx context.Context, key Key, f *flight) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-f.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.hasValue {
		return Result{Value: e.value, HasValue: true}, nil
	}
	if f.err != nil {
		return Result{}, f.err
	}
	// The fetch succeeded but was superseded before it could be cached.
	// Serve it once; the next read goes to the upstream again.
	return Result{Value: f.val, HasValue: true}, nil
}

// Invalidate marks every entry matching pred stale and detaches their
// in-flight fetches, forcing the next read for each key back to the upstream.
func (s *Store) Invalidate(pred func(Key) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if pred(key) {
			s.invalidateLocked(e)
		}
	}
}

// InvalidateKey marks a single entry stale if it is cached.
func (s *Store) InvalidateKey(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.invalidateLocked(e)
	}
}

func (s *Store) invalidateLocked(e *entry) {
	e.stale = true
	e.gen++
	e.inflight = nil
}

// Sweep drops entries untouched for longer than EvictAfter and reports how
// many were dropped. Entries with an in-flight fetch or a queued writer are
// kept regardless.
func (s *Store) Sweep() int {
	if s.opts.EvictAfter <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.opts.Now().Add(-s.opts.EvictAfter)
	evicted := 0
	for key, e := range s.entries {
		if e.inflight != nil || len(e.writeCh) == 0 {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len reports how many entries the store currently holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) ensure(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{writeCh: make(chan struct{}, 1)}
		e.writeCh <- struct{}{}
		s.entries[key] = e
	}
	return e
}
