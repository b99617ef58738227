package domain

import (
	"context"
	"iter"
)

// TransactionView provides read-only access to widget state.
type TransactionView interface {
	// Get returns the widget or ErrNotFound.
	Get(id int64) (Widget, error)
	// Ordered yields every widget sorted by index. Each range over the
	// returned sequence re-reads the current state.
	Ordered(dir Direction) iter.Seq[Widget]
	// Page returns up to limit widgets starting at the ascending offset.
	Page(offset, limit int) []Widget
	// Count returns the number of stored widgets.
	Count() int
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	TransactionView
	// Add assigns a fresh id and stores the widget as given.
	Add(Widget) (int64, error)
	// Update replaces the stored widget with the same id.
	Update(Widget) error
	// Delete removes the widget.
	Delete(id int64) error
}

// Snapshot is a point-in-time copy of the whole store, including the id
// sequence so that reloaded stores never reuse ids.
type Snapshot struct {
	LastID  int64    `json:"last_id"`
	Widgets []Widget `json:"widgets"`
}

// PersistentStore is the store contract used by the service layer. Durable
// backends must keep ordering, id assignment and mutation atomicity identical
// to the in-memory implementation.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// GetWidget reads a single widget outside of any transaction.
	GetWidget(id int64) (Widget, bool)
	ListWidgets() []Widget
	ExportState() Snapshot
	ReplaceState(ctx context.Context, snapshot Snapshot) error
}
