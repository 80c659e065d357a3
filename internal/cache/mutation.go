package cache

import (
	"context"
	"fmt"
	"time"
)

// Mutation describes one optimistic write as a three-phase protocol:
// snapshot -> apply -> reconcile-or-rollback. Every call site gets rollback
// correctness from Mutate instead of re-implementing it.
//
// Patch and Reconcile operate copy-on-write: they must return a new value and
// never modify the cached one in place. That is what makes a snapshot a
// plain reference and a rollback a verbatim restore.
type Mutation struct {
	// Key is the primary target. Concurrent mutations with the same primary
	// key queue behind one another rather than racing.
	Key Key

	// Affects selects every cached key whose value may contain the mutated
	// entity; all of them are snapshotted and patched, not just Key.
	Affects func(Key) bool

	// Patch produces the optimistically updated value for one affected
	// entry. Returning the input unchanged is a valid no-op (for pages that
	// turn out not to contain the entity).
	Patch func(cached any) any

	// Call performs the upstream write and returns the authoritative entity.
	Call func(ctx context.Context) (any, error)

	// Reconcile folds the authoritative entity into one affected entry,
	// replacing the optimistic guess. Nil leaves the optimistic value.
	Reconcile func(cached, authoritative any) any

	// Invalidates selects aggregate keys that cannot be patched in place and
	// must be refetched after the write confirms. Nil invalidates nothing.
	Invalidates func(Key) bool
}

// RolledBackError reports a mutation that failed after its optimistic patch
// was applied. By the time the caller sees it, every snapshot has been
// restored verbatim.
type RolledBackError struct {
	Err error
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("mutation rolled back: %v", e.Err)
}

func (e *RolledBackError) Unwrap() error { return e.Err }

// snapshot captures an entry's pre-mutation state. Only entries that hold a
// value get snapshotted, so hasValue needs no field.
type snapshot struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

// Mutate runs the three-phase optimistic write protocol. The snapshot and
// patch of every affected entry happen under the store lock, so no reader
// observes a half-applied patch. On upstream success the authoritative value
// replaces the optimistic one and aggregate keys are invalidated; on failure
// every snapshot is restored and the error surfaces wrapped in
// RolledBackError.
func (s *Store) Mutate(ctx context.Context, m Mutation) (any, error) {
	s.mu.Lock()
	primary := s.ensure(m.Key)
	writeCh := primary.writeCh
	s.mu.Unlock()

	// Queue behind any in-flight mutation for the same primary key.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-writeCh:
	}
	defer func() { writeCh <- struct{}{} }()

	// Phase 1+2: snapshot and patch atomically with respect to readers.
	s.mu.Lock()
	snaps := make(map[Key]snapshot)
	for key, e := range s.entries {
		if !e.hasValue || m.Affects == nil || !m.Affects(key) {
			continue
		}
		snaps[key] = snapshot{value: e.value, fetchedAt: e.fetchedAt, stale: e.stale}
		if m.Patch != nil {
			e.value = m.Patch(e.value)
		}
		// In-flight fetches for patched keys would resolve with
		// pre-mutation data; supersede them.
		e.gen++
		e.inflight = nil
	}
	s.mu.Unlock()

	// Phase 3: the upstream decides.
	authoritative, err := m.Call(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		for key, snap := range snaps {
			e, ok := s.entries[key]
			if !ok {
				continue
			}
			e.value = snap.value
			e.hasValue = true
			e.stale = snap.stale
			e.fetchedAt = snap.fetchedAt
			e.gen++
			e.inflight = nil
		}
		return nil, &RolledBackError{Err: err}
	}

	for key := range snaps {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		if m.Reconcile != nil {
			e.value = m.Reconcile(e.value, authoritative)
		}
		e.fetchedAt = s.opts.Now()
		e.stale = false
		e.gen++
		e.inflight = nil
	}
	if m.Invalidates != nil {
		for key, e := range s.entries {
			if m.Invalidates(key) {
				s.invalidateLocked(e)
			}
		}
	}
	return authoritative, nil
}
