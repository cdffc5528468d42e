package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAssignsGapFreeSequence(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	for i := 1; i <= 5; i++ {
		entry, err := svc.Append(ctx, Draft{SKU: "TSHIRT-BLK-M", Location: "STORE-1", Delta: 1, Kind: KindReceipt, Ref: "GRN-1", ActorID: "emp-1"})
		require.NoError(t, err)
		require.Equal(t, int64(i), entry.Seq)
		require.False(t, entry.OccurredAt.IsZero())
	}
}

func TestAppendRejectsInvalidDraft(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	cases := []struct {
		name  string
		draft Draft
	}{
		{"missing sku", Draft{Location: "STORE-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"}},
		{"missing location", Draft{SKU: "TSHIRT-BLK-M", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"}},
		{"zero delta", Draft{SKU: "TSHIRT-BLK-M", Location: "STORE-1", Kind: KindReceipt, ActorID: "emp-1"}},
		{"unknown kind", Draft{SKU: "TSHIRT-BLK-M", Location: "STORE-1", Delta: 1, Kind: Kind("TRANSFER"), ActorID: "emp-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(ctx, tc.draft)
			require.ErrorIs(t, err, ErrInvalidDraft)
		})
	}
}

func TestAppendSeedsFromExistingEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	first := NewService(repo)
	for i := 0; i < 3; i++ {
		_, err := first.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 2, Kind: KindReceipt, ActorID: "emp-1"})
		require.NoError(t, err)
	}

	// A restarted instance over the same store continues the numbering.
	second := NewService(repo)
	entry, err := second.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 1, Kind: KindSale, ActorID: "emp-1"})
	require.NoError(t, err)
	require.Equal(t, int64(4), entry.Seq)
}

func TestAppendRetriesOnSequenceConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)

	// Another appender takes seq 1 and 2 behind the service's back.
	require.NoError(t, repo.Insert(ctx, Entry{Seq: 1, SKU: "X", Location: "L", Delta: 1, Kind: KindReceipt}))

	entry, err := svc.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), entry.Seq)
}

func TestAppendGivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	svc := NewService(conflictRepo{})

	_, err := svc.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"})
	require.ErrorIs(t, err, ErrSequenceConflict)
}

func TestAppendSurfacesRepositoryError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	svc := NewService(failingRepo{err: boom})

	_, err := svc.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"})
	require.ErrorIs(t, err, boom)
}

func TestConcurrentAppendsStayGapFree(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, Draft{SKU: "SOCKS-3PK", Location: "STORE-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	require.NoError(t, svc.Replay(ctx, 1, func(e Entry) error {
		seen[e.Seq] = true
		return nil
	}))
	require.Len(t, seen, writers)
	for i := int64(1); i <= writers; i++ {
		require.True(t, seen[i], "missing seq %d", i)
	}
}

func TestReplayResumesFromLastSeenSequence(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	for i := 0; i < 6; i++ {
		_, err := svc.Append(ctx, Draft{SKU: "CAP-NVY", Location: "DC-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"})
		require.NoError(t, err)
	}

	stop := errors.New("stop")
	var last int64
	err := svc.Replay(ctx, 1, func(e Entry) error {
		last = e.Seq
		if e.Seq == 3 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, int64(3), last)

	var resumed []int64
	require.NoError(t, svc.Replay(ctx, last+1, func(e Entry) error {
		resumed = append(resumed, e.Seq)
		return nil
	}))
	require.Equal(t, []int64{4, 5, 6}, resumed)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	drafts := []Draft{
		{SKU: "A", Location: "STORE-1", Delta: 5, Kind: KindReceipt, ActorID: "emp-1"},
		{SKU: "A", Location: "STORE-2", Delta: 3, Kind: KindReceipt, ActorID: "emp-1"},
		{SKU: "B", Location: "STORE-1", Delta: 1, Kind: KindReceipt, ActorID: "emp-1"},
	}
	for _, d := range drafts {
		_, err := svc.Append(ctx, d)
		require.NoError(t, err)
	}

	bySKU, err := svc.List(ctx, Filter{SKU: "A"})
	require.NoError(t, err)
	require.Len(t, bySKU, 2)

	byLocation, err := svc.List(ctx, Filter{Location: "STORE-1"})
	require.NoError(t, err)
	require.Len(t, byLocation, 2)

	paged, err := svc.List(ctx, Filter{AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, int64(2), paged[0].Seq)
}

type conflictRepo struct{}

func (conflictRepo) Insert(ctx context.Context, entry Entry) error { return ErrSequenceConflict }
func (conflictRepo) MaxSeq(ctx context.Context) (int64, error)     { return 0, nil }
func (conflictRepo) Scan(ctx context.Context, fromSeq int64, fn func(Entry) error) error {
	return nil
}
func (conflictRepo) List(ctx context.Context, filter Filter) ([]Entry, error) { return nil, nil }
func (conflictRepo) HasEntriesFor(ctx context.Context, sku string) (bool, error) {
	return false, nil
}

type failingRepo struct{ err error }

func (r failingRepo) Insert(ctx context.Context, entry Entry) error { return r.err }
func (r failingRepo) MaxSeq(ctx context.Context) (int64, error)     { return 0, nil }
func (r failingRepo) Scan(ctx context.Context, fromSeq int64, fn func(Entry) error) error {
	return r.err
}
func (r failingRepo) List(ctx context.Context, filter Filter) ([]Entry, error) { return nil, r.err }
func (r failingRepo) HasEntriesFor(ctx context.Context, sku string) (bool, error) {
	return false, r.err
}
