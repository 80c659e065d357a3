package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(clock *fakeClock) *Store {
	return New(Options{
		StaleAfter: time.Minute,
		EvictAfter: time.Hour,
		Now:        clock.Now,
	})
}

func listKey(page int) Key {
	p := Params{"companyId": "c1"}
	p.SetInt("page", page)
	return NewKey("attendance", p)
}

func TestGetFreshHitSkipsFetcher(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "page-1", nil
	}

	res, err := s.Get(ctx, key, fetcher)
	require.NoError(t, err)
	assert.Equal(t, "page-1", res.Value)

	// Within the staleness window the fetcher must not run again.
	clock.Advance(30 * time.Second)
	res, err = s.Get(ctx, key, fetcher)
	require.NoError(t, err)
	assert.Equal(t, "page-1", res.Value)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Past the window it does.
	clock.Advance(time.Minute)
	_, err = s.Get(ctx, key, fetcher)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetDeduplicatesConcurrentFetches(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	key := listKey(1)

	var calls int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "page-1", nil
	}

	const readers = 8
	var wg sync.WaitGroup
	results := make([]Result, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Get(context.Background(), key, fetcher)
		}(i)
	}

	// Let the goroutines pile up on the single in-flight fetch.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "page-1", results[i].Value)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetKeepsPreviousValueDuringRefetch(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)

	_, err := s.Get(ctx, key, func(ctx context.Context) (any, error) { return "old", nil })
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Get(ctx, key, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "new", nil
		})
	}()
	<-started

	// A reader arriving mid-refetch sees the previous page, never a blank.
	res, err := s.Get(ctx, key, func(ctx context.Context) (any, error) {
		t.Error("second fetch started during in-flight refetch")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.HasValue)
	assert.Equal(t, "old", res.Value)
	assert.True(t, res.Refreshing)

	close(release)
	<-done

	res, err = s.Get(ctx, key, func(ctx context.Context) (any, error) { return nil, errors.New("unexpected") })
	require.NoError(t, err)
	assert.Equal(t, "new", res.Value)
}

func TestGetFetchFailureLeavesPreviousState(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)

	_, err := s.Get(ctx, key, func(ctx context.Context) (any, error) { return "good", nil })
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	boom := errors.New("upstream down")
	res, err := s.Get(ctx, key, func(ctx context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.True(t, res.HasValue)
	assert.Equal(t, "good", res.Value)

	// The failure is not cached: the next read fetches again.
	res, err = s.Get(ctx, key, func(ctx context.Context) (any, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Value)
}

func TestGetFetchFailureOnEmptyEntrySurfacesError(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)

	boom := errors.New("upstream down")
	res, err := s.Get(context.Background(), listKey(1), func(ctx context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, res.HasValue)
}

func TestSupersededFetchDoesNotOverwrite(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)

	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = s.Get(ctx, key, func(ctx context.Context) (any, error) {
			close(firstStarted)
			<-firstRelease
			return "generation-1", nil
		})
	}()
	<-firstStarted

	// Invalidation supersedes the in-flight fetch; the next read starts a
	// new generation.
	s.InvalidateKey(key)
	res, err := s.Get(ctx, key, func(ctx context.Context) (any, error) { return "generation-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "generation-2", res.Value)

	// Now the first fetch resolves late. Its result must be discarded.
	close(firstRelease)
	<-firstDone

	res, err = s.Get(ctx, key, func(ctx context.Context) (any, error) {
		t.Error("fresh entry refetched")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "generation-2", res.Value)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()

	for page := 1; page <= 3; page++ {
		p := page
		_, err := s.Get(ctx, listKey(p), func(ctx context.Context) (any, error) { return p, nil })
		require.NoError(t, err)
	}

	s.Invalidate(func(k Key) bool { return k.Kind() == "attendance" })

	var refetched int
	for page := 1; page <= 3; page++ {
		res, err := s.Get(ctx, listKey(page), func(ctx context.Context) (any, error) {
			refetched++
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", res.Value)
	}
	assert.Equal(t, 3, refetched)
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()

	_, err := s.Get(ctx, listKey(1), func(ctx context.Context) (any, error) { return "idle", nil })
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = s.Get(ctx, listKey(2), func(ctx context.Context) (any, error) { return "active", nil })
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestFetchTyped(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)

	type page struct{ Total int }
	v, ok, err := Fetch(context.Background(), s, listKey(1), func(ctx context.Context) (*page, error) {
		return &page{Total: 42}, nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, v.Total)
}

func TestKeyDerivationIsDeterministic(t *testing.T) {
	from := time.Date(2026, 3, 2, 23, 30, 0, 0, time.FixedZone("UTC+13", 13*3600))
	sameFrom := from.UTC()

	a := Params{"companyId": "c1", "search": "kim"}
	a.SetInt("page", 2)
	a.SetDay("from", from)

	b := Params{}
	b.SetDay("from", sameFrom)
	b.SetInt("page", 2)
	b["search"] = "kim"
	b["companyId"] = "c1"
	b["employeeId"] = "" // empty params are dropped

	ka, kb := NewKey("attendance", a), NewKey("attendance", b)
	assert.Equal(t, ka, kb)
	assert.Equal(t, "c1", ka.Param("companyId"))
	assert.Equal(t, "attendance", ka.Kind())

	kc := NewKey("attendance", Params{"companyId": "c2"})
	assert.NotEqual(t, ka, kc)
	assert.NotEqual(t, NewKey("employees", a), ka)
}
