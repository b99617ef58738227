package core

import (
	"context"
	"testing"
	"time"

	"widgetcore/internal/infra/persistence/memory"
	"widgetcore/pkg/domain"
)

func intPtr(v int) *int { return &v }

// recordingStore keeps the result of the last committed transaction.
type recordingStore struct {
	*memory.Store
	last domain.Result
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.NewStore()}
}

func (r *recordingStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := r.Store.RunInTransaction(ctx, fn)
	if err == nil {
		r.last = res
	}
	return res, err
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func mustCreate(t *testing.T, svc *Service, index *int) Widget {
	t.Helper()
	w, err := svc.Create(context.Background(), WidgetDraft{X: 1, Y: 1, Width: 10, Height: 10, Index: index})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return w
}

// seedIndices inserts one widget per index directly into the store, in
// order, so gapped layouts can be built; ids are 1..n.
func seedIndices(t *testing.T, svc *Service, indices ...int) {
	t.Helper()
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, idx := range indices {
			if _, err := tx.Add(domain.Widget{Width: 1, Height: 1, Index: idx, ModificationDate: stamp}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func indexByID(svc *Service) map[int64]int {
	out := make(map[int64]int)
	for _, w := range svc.Store().ListWidgets() {
		out[w.ID] = w.Index
	}
	return out
}

func assertIndices(t *testing.T, svc *Service, want map[int64]int) {
	t.Helper()
	got := indexByID(svc)
	for id, idx := range want {
		if got[id] != idx {
			t.Fatalf("widget %d: expected index %d, got %d (all: %v)", id, idx, got[id], got)
		}
	}
}

func assertUnique(t *testing.T, svc *Service) {
	t.Helper()
	seen := make(map[int]int64)
	for _, w := range svc.Store().ListWidgets() {
		if other, dup := seen[w.Index]; dup {
			t.Fatalf("index %d shared by widgets %d and %d", w.Index, other, w.ID)
		}
		seen[w.Index] = w.ID
	}
}
