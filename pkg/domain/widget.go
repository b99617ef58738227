// Package domain defines the widget entity, the area filter predicate, the
// paging value types and the persistence contracts shared by every backend.
package domain

import "time"

// Widget is a rectangle placed on a plane with a unique z-order index.
type Widget struct {
	ID               int64     `json:"id"`
	X                int       `json:"x"`
	Y                int       `json:"y"`
	Width            float64   `json:"width"`
	Height           float64   `json:"height"`
	Index            int       `json:"index"`
	ModificationDate time.Time `json:"modificationDate"`
}

// WidgetDraft carries the client-settable fields of a create or update.
// A nil Index asks the service to append the widget on top of the stack.
type WidgetDraft struct {
	X      int
	Y      int
	Width  float64
	Height float64
	Index  *int
}

// Validate checks the extents. Presence of the remaining fields is enforced
// by the request decoder.
func (d WidgetDraft) Validate() error {
	var verrs ValidationErrors
	if !(d.Width > 0) {
		verrs.Add("width", "must be positive")
	}
	if !(d.Height > 0) {
		verrs.Add("height", "must be positive")
	}
	return verrs.Err()
}

// Direction selects the ordering of an index-sorted iteration.
type Direction int

const (
	// Ascending iterates from the lowest index to the highest.
	Ascending Direction = iota
	// Descending iterates from the highest index to the lowest.
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// AreaFilter is a query rectangle. A widget matches only when it lies fully
// inside the rectangle; partial overlap does not count.
type AreaFilter struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Match reports whether w is fully contained in the filter rectangle.
func (a AreaFilter) Match(w Widget) bool {
	return w.X >= a.X &&
		w.Y >= a.Y &&
		float64(w.X)+w.Width <= float64(a.X+a.Width) &&
		float64(w.Y)+w.Height <= float64(a.Y+a.Height)
}

// Page is one slice of an index-ordered listing. Total is nil when the
// listing was filtered and no exact count is known.
type Page struct {
	Total   *int     `json:"total,omitempty"`
	HasNext bool     `json:"hasNext"`
	Content []Widget `json:"content"`
	Page    int      `json:"page"`
	Size    int      `json:"size"`
}

// Action indicates the type of modification performed on a widget.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change records a single widget mutation made inside a transaction.
// Before is zero for creates and After is zero for deletes.
type Change struct {
	Action Action
	Before Widget
	After  Widget
}

// Result summarizes the mutations committed by a transaction.
type Result struct {
	Changes []Change
}

// Count returns the number of changes with the given action.
func (r Result) Count(action Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == action {
			n++
		}
	}
	return n
}
