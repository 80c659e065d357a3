package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID      string
	Content string
}

type recordPage struct {
	Data []record
}

func seedPage(n int) *recordPage {
	p := &recordPage{}
	for i := 0; i < n; i++ {
		p.Data = append(p.Data, record{ID: fmt.Sprintf("A%d", i+1), Content: fmt.Sprintf("work %d", i+1)})
	}
	return p
}

// patchContent returns a copy-on-write patch updating one record's content.
func patchContent(id, content string) func(any) any {
	return func(cached any) any {
		page, ok := cached.(*recordPage)
		if !ok {
			return cached
		}
		out := &recordPage{Data: append([]record(nil), page.Data...)}
		for i := range out.Data {
			if out.Data[i].ID == id {
				out.Data[i].Content = content
			}
		}
		return out
	}
}

func seedStore(t *testing.T, s *Store, key Key, value any) {
	t.Helper()
	_, err := s.Get(context.Background(), key, func(ctx context.Context) (any, error) { return value, nil })
	require.NoError(t, err)
}

func TestMutateAppliesOptimisticallyThenReconciles(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)
	seedStore(t, s, key, seedPage(3))

	callRunning := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Mutate(ctx, Mutation{
			Key:     key,
			Affects: func(k Key) bool { return k == key },
			Patch:   patchContent("A2", "optimistic"),
			Call: func(ctx context.Context) (any, error) {
				close(callRunning)
				<-release
				return record{ID: "A2", Content: "authoritative"}, nil
			},
			Reconcile: func(cached, authoritative any) any {
				rec := authoritative.(record)
				return patchContent(rec.ID, rec.Content)(cached)
			},
		})
		assert.NoError(t, err)
	}()

	// While the upstream call is in flight, readers already see the patch.
	<-callRunning
	res, err := s.Get(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, "optimistic", res.Value.(*recordPage).Data[1].Content)

	close(release)
	<-done

	res, err = s.Get(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, "authoritative", res.Value.(*recordPage).Data[1].Content)
}

func TestMutateRollbackRestoresSnapshotExactly(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)
	original := seedPage(10)
	seedStore(t, s, key, original)

	boom := errors.New("409 conflict")
	_, err := s.Mutate(ctx, Mutation{
		Key:     key,
		Affects: func(k Key) bool { return k == key },
		Patch:   patchContent("A1", "doomed edit"),
		Call:    func(ctx context.Context) (any, error) { return nil, boom },
	})

	var rb *RolledBackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, err, boom)

	res, err := s.Get(ctx, key, nil)
	require.NoError(t, err)
	page := res.Value.(*recordPage)
	// A1's original content is back and the other nine items are untouched.
	assert.Same(t, original, page)
	assert.Equal(t, "work 1", page.Data[0].Content)
	for i := 1; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("work %d", i+1), page.Data[i].Content)
	}
}

func TestMutatePatchesEveryAffectedViewAndRollsAllBack(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()

	companyKey := listKey(1)
	employeeKey := NewKey("attendance", Params{"employeeId": "e7"})
	unrelatedKey := NewKey("attendance", Params{"employeeId": "e9"})

	seedStore(t, s, companyKey, seedPage(3))
	seedStore(t, s, employeeKey, seedPage(2))
	unrelated := seedPage(2)
	seedStore(t, s, unrelatedKey, unrelated)

	affects := func(k Key) bool { return k == companyKey || k == employeeKey }

	_, err := s.Mutate(ctx, Mutation{
		Key:     employeeKey,
		Affects: affects,
		Patch:   patchContent("A1", "edited"),
		Call:    func(ctx context.Context) (any, error) { return nil, errors.New("rejected") },
	})
	require.Error(t, err)

	for _, k := range []Key{companyKey, employeeKey} {
		res, gerr := s.Get(ctx, k, nil)
		require.NoError(t, gerr)
		assert.Equal(t, "work 1", res.Value.(*recordPage).Data[0].Content, "key %s", k)
	}
	res, err := s.Get(ctx, unrelatedKey, nil)
	require.NoError(t, err)
	assert.Same(t, unrelated, res.Value)
}

func TestMutateInvalidatesAggregatesOnSuccess(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()

	listK := listKey(1)
	summaryK := NewKey("summary", Params{"companyId": "c1", "day": "2026-03-02"})
	seedStore(t, s, listK, seedPage(3))
	seedStore(t, s, summaryK, "summary-v1")

	_, err := s.Mutate(ctx, Mutation{
		Key:         listK,
		Affects:     func(k Key) bool { return k == listK },
		Patch:       patchContent("A1", "edited"),
		Call:        func(ctx context.Context) (any, error) { return record{ID: "A1", Content: "edited"}, nil },
		Invalidates: func(k Key) bool { return k.Kind() == "summary" },
	})
	require.NoError(t, err)

	var refetched bool
	res, err := s.Get(ctx, summaryK, func(ctx context.Context) (any, error) {
		refetched = true
		return "summary-v2", nil
	})
	require.NoError(t, err)
	assert.True(t, refetched)
	assert.Equal(t, "summary-v2", res.Value)
}

func TestMutateSerializesWritesToSameKey(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)
	seedStore(t, s, key, seedPage(1))

	firstRunning := make(chan struct{})
	firstRelease := make(chan struct{})
	var order []string

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = s.Mutate(ctx, Mutation{
			Key:     key,
			Affects: func(k Key) bool { return k == key },
			Patch:   patchContent("A1", "first"),
			Call: func(ctx context.Context) (any, error) {
				close(firstRunning)
				<-firstRelease
				order = append(order, "first")
				return nil, errors.New("rejected")
			},
		})
	}()
	<-firstRunning

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = s.Mutate(ctx, Mutation{
			Key:     key,
			Affects: func(k Key) bool { return k == key },
			Patch:   patchContent("A1", "second"),
			Call: func(ctx context.Context) (any, error) {
				order = append(order, "second")
				return record{ID: "A1", Content: "second"}, nil
			},
		})
	}()

	// The second write must queue until the first resolves and rolls back;
	// otherwise its patch would be clobbered by the rollback.
	select {
	case <-secondDone:
		t.Fatal("second mutation ran before the first resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(firstRelease)
	<-firstDone
	<-secondDone

	assert.Equal(t, []string{"first", "second"}, order)

	res, err := s.Get(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Value.(*recordPage).Data[0].Content)
}

func TestMutateQueuedWriteRespectsContext(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	key := listKey(1)
	seedStore(t, s, key, seedPage(1))

	running := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.Mutate(context.Background(), Mutation{
			Key:     key,
			Affects: func(k Key) bool { return k == key },
			Call: func(ctx context.Context) (any, error) {
				close(running)
				<-release
				return nil, nil
			},
		})
	}()
	<-running
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Mutate(ctx, Mutation{Key: key, Call: func(ctx context.Context) (any, error) { return nil, nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMutateSupersedesInFlightFetchForPatchedKey(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(clock)
	ctx := context.Background()
	key := listKey(1)
	seedStore(t, s, key, seedPage(1))

	// Go stale and start a background refetch that will resolve late with
	// pre-mutation data.
	clock.Advance(2 * time.Minute)
	fetchStarted := make(chan struct{})
	fetchRelease := make(chan struct{})
	fetchDone := make(chan struct{})
	go func() {
		defer close(fetchDone)
		_, _ = s.Get(ctx, key, func(ctx context.Context) (any, error) {
			close(fetchStarted)
			<-fetchRelease
			return seedPage(1), nil // stale upstream state
		})
	}()
	<-fetchStarted

	_, err := s.Mutate(ctx, Mutation{
		Key:     key,
		Affects: func(k Key) bool { return k == key },
		Patch:   patchContent("A1", "edited"),
		Call:    func(ctx context.Context) (any, error) { return record{ID: "A1", Content: "edited"}, nil },
		Reconcile: func(cached, authoritative any) any {
			rec := authoritative.(record)
			return patchContent(rec.ID, rec.Content)(cached)
		},
	})
	require.NoError(t, err)

	close(fetchRelease)
	<-fetchDone

	res, err := s.Get(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, "edited", res.Value.(*recordPage).Data[0].Content)
}
