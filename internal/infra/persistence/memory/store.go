// Package memory provides an in-memory implementation of the widget
// persistence store used for tests and ephemeral environments. Durable
// backends embed it and snapshot its state after every transaction.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"widgetcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Widget aliases domain.Widget for in-memory persistence operations.
	Widget = domain.Widget
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing committed changes.
	Result = domain.Result
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	widgets map[int64]Widget
	lastID  int64
}

func newMemoryState() memoryState {
	return memoryState{widgets: make(map[int64]Widget)}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		widgets: make(map[int64]Widget, len(s.widgets)),
		lastID:  s.lastID,
	}
	for k, v := range s.widgets {
		cloned.widgets[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		LastID:  state.lastID,
		Widgets: sortedWidgets(&state, domain.Ascending),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.lastID = s.LastID
	for _, w := range s.Widgets {
		state.widgets[w.ID] = w
		if w.ID > state.lastID {
			state.lastID = w.ID
		}
	}
	return state
}

func compareIndex(a, b Widget) int {
	if c := cmp.Compare(a.Index, b.Index); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func sortedWidgets(state *memoryState, dir domain.Direction) []Widget {
	out := make([]Widget, 0, len(state.widgets))
	for _, w := range state.widgets {
		out = append(out, w)
	}
	if dir == domain.Descending {
		slices.SortFunc(out, func(a, b Widget) int { return compareIndex(b, a) })
	} else {
		slices.SortFunc(out, compareIndex)
	}
	return out
}

// Store provides an in-memory transactional widget store.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// LoadStore builds a store from persisted state. Snapshots that repeat an id
// or an index are rejected with a validation error.
func LoadStore(snapshot Snapshot) (*Store, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s := NewStore()
	s.ImportState(snapshot)
	return s, nil
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// ReplaceState implements domain.PersistentStore.
func (s *Store) ReplaceState(_ context.Context, snapshot Snapshot) error {
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

func validateSnapshot(snapshot Snapshot) error {
	ids := make(map[int64]struct{}, len(snapshot.Widgets))
	indices := make(map[int]struct{}, len(snapshot.Widgets))
	var verrs domain.ValidationErrors
	for _, w := range snapshot.Widgets {
		if w.ID <= 0 {
			verrs.Add("widgets.id", "must be positive")
			continue
		}
		if _, dup := ids[w.ID]; dup {
			verrs.Add("widgets.id", "duplicate id")
		}
		if _, dup := indices[w.Index]; dup {
			verrs.Add("widgets.index", "duplicate index")
		}
		ids[w.ID] = struct{}{}
		indices[w.Index] = struct{}{}
	}
	return verrs.Err()
}

// GetWidget returns a widget by id outside of any transaction.
func (s *Store) GetWidget(id int64) (Widget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.widgets[id]
	return w, ok
}

// ListWidgets returns every widget in ascending index order.
func (s *Store) ListWidgets() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedWidgets(&s.state, domain.Ascending)
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	stateView
	changes []Change
}

// stateView exposes read-only access over a state pointer.
type stateView struct {
	state *memoryState
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds, so concurrent readers
// never observe a partially applied mutation.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &transaction{stateView: stateView{state: &state}}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	s.state = state
	return Result{Changes: tx.changes}, nil
}

// View executes fn against the live state under a read lock. Sequences
// obtained from the view must not be used after fn returns.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(stateView{state: &s.state})
}

func (v stateView) Get(id int64) (Widget, error) {
	w, ok := v.state.widgets[id]
	if !ok {
		return Widget{}, domain.ErrNotFound{ID: id}
	}
	return w, nil
}

func (v stateView) Ordered(dir domain.Direction) iter.Seq[Widget] {
	return func(yield func(Widget) bool) {
		for _, w := range sortedWidgets(v.state, dir) {
			if !yield(w) {
				return
			}
		}
	}
}

func (v stateView) Page(offset, limit int) []Widget {
	all := sortedWidgets(v.state, domain.Ascending)
	offset = max(offset, 0)
	if offset >= len(all) || limit <= 0 {
		return []Widget{}
	}
	end := offset + min(limit, len(all)-offset)
	return slices.Clone(all[offset:end])
}

func (v stateView) Count() int {
	return len(v.state.widgets)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Add stores a new widget under a freshly assigned id.
func (tx *transaction) Add(w Widget) (int64, error) {
	tx.state.lastID++
	w.ID = tx.state.lastID
	tx.state.widgets[w.ID] = w
	tx.recordChange(Change{Action: domain.ActionCreate, After: w})
	return w.ID, nil
}

// Update replaces an existing widget.
func (tx *transaction) Update(w Widget) error {
	before, ok := tx.state.widgets[w.ID]
	if !ok {
		return domain.ErrNotFound{ID: w.ID}
	}
	tx.state.widgets[w.ID] = w
	tx.recordChange(Change{Action: domain.ActionUpdate, Before: before, After: w})
	return nil
}

// Delete removes a widget, leaving its index unused.
func (tx *transaction) Delete(id int64) error {
	before, ok := tx.state.widgets[id]
	if !ok {
		return domain.ErrNotFound{ID: id}
	}
	delete(tx.state.widgets, id)
	tx.recordChange(Change{Action: domain.ActionDelete, Before: before})
	return nil
}
