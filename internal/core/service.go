// Package core implements the widget service: z-index resolution with
// minimal successor shifting, area-filtered paging and snapshot backups.
package core

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"widgetcore/internal/infra/persistence/memory"
	"widgetcore/pkg/domain"
)

type (
	Widget          = domain.Widget
	WidgetDraft     = domain.WidgetDraft
	AreaFilter      = domain.AreaFilter
	Page            = domain.Page
	Snapshot        = domain.Snapshot
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Paging bounds list requests.
type Paging struct {
	DefaultSize int
	MaxSize     int
}

// DefaultPaging mirrors the configuration defaults.
var DefaultPaging = Paging{DefaultSize: 100, MaxSize: 500}

// Service exposes the widget operations on top of a persistent store.
// Creates, updates and deletes are serialized by writeMu so that index
// resolution and the resulting shifts are observed atomically.
type Service struct {
	store   PersistentStore
	writeMu sync.Mutex
	paging  Paging
	logger  *log.Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger; the default discards output.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for modification dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPaging overrides the page size bounds. Non-positive values keep the defaults.
func WithPaging(p Paging) Option {
	return func(s *Service) {
		if p.DefaultSize > 0 {
			s.paging.DefaultSize = p.DefaultSize
		}
		if p.MaxSize > 0 {
			s.paging.MaxSize = p.MaxSize
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		paging:  DefaultPaging,
		logger:  log.New(io.Discard),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Paging returns the effective page size bounds.
func (s *Service) Paging() Paging { return s.paging }

// Get returns a widget by id.
func (s *Service) Get(ctx context.Context, id int64) (w Widget, err error) {
	_, op := s.observe(ctx, OpGet)
	defer func() { op.finish(err) }()
	op.touched(id, 0)
	w, ok := s.store.GetWidget(id)
	if !ok {
		return Widget{}, domain.ErrNotFound{ID: id}
	}
	return w, nil
}

// Create stores a new widget, resolving its index and shifting colliding successors.
func (s *Service) Create(ctx context.Context, draft WidgetDraft) (created Widget, err error) {
	ctx, op := s.observe(ctx, OpCreate)
	defer func() { op.finish(err) }()
	if err := draft.Validate(); err != nil {
		return Widget{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		w := Widget{
			X:                draft.X,
			Y:                draft.Y,
			Width:            draft.Width,
			Height:           draft.Height,
			ModificationDate: s.now().UTC(),
		}
		plan := resolveIndex(tx, 0, nil, draft.Index)
		if err := plan.apply(tx); err != nil {
			return err
		}
		w.Index = plan.index
		id, err := tx.Add(w)
		if err != nil {
			return err
		}
		w.ID = id
		created = w
		op.touched(id, len(plan.chain))
		s.logger.Debug("widget created", "id", id, "index", w.Index, "shifted", len(plan.chain))
		return nil
	})
	if err != nil {
		return Widget{}, err
	}
	return created, nil
}

// Update replaces every client-settable field of the widget and re-resolves its index.
func (s *Service) Update(ctx context.Context, id int64, draft WidgetDraft) (updated Widget, err error) {
	ctx, op := s.observe(ctx, OpUpdate)
	defer func() { op.finish(err) }()
	if err := draft.Validate(); err != nil {
		return Widget{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, err := tx.Get(id)
		if err != nil {
			return err
		}
		w := Widget{
			ID:               id,
			X:                draft.X,
			Y:                draft.Y,
			Width:            draft.Width,
			Height:           draft.Height,
			ModificationDate: s.now().UTC(),
		}
		plan := resolveIndex(tx, id, &current.Index, draft.Index)
		if err := plan.apply(tx); err != nil {
			return err
		}
		w.Index = plan.index
		if err := tx.Update(w); err != nil {
			return err
		}
		updated = w
		op.touched(id, len(plan.chain))
		s.logger.Debug("widget updated", "id", id, "from", current.Index, "to", w.Index, "shifted", len(plan.chain))
		return nil
	})
	if err != nil {
		return Widget{}, err
	}
	return updated, nil
}

// Delete removes a widget. Its index is left as a gap.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, op := s.observe(ctx, OpDelete)
	defer func() { op.finish(err) }()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	op.touched(id, 0)
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.Delete(id)
	})
	return err
}
