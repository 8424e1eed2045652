// Package loader materializes dataset contents on demand. It is the only
// component that reads full datasets from storage and it never caches.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/observability"
	"github.com/tailored-agentic-units/datashelf/storage"
)

// Describer resolves dataset descriptors. *catalog.Registry satisfies it.
type Describer interface {
	Describe(id string) (dataset.Descriptor, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithObserver sets the observer receiving load events.
func WithObserver(o observability.Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// Loader reads registered datasets from a store and validates them against
// their declared schema.
type Loader struct {
	catalog  Describer
	store    storage.Store
	observer observability.Observer
}

// New creates a Loader over catalog and store.
func New(catalog Describer, store storage.Store, opts ...Option) *Loader {
	l := &Loader{
		catalog:  catalog,
		store:    store,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load materializes dataset id narrowed by q. Unregistered ids fail with the
// catalog's not-found error before any I/O. Storage failures are reported
// as ErrSourceUnavailable and schema violations as ErrSchemaMismatch. The
// projection and row limit of q are applied after validation.
//
// The read runs to completion even if ctx is cancelled; ctx only carries
// values to the store.
func (l *Loader) Load(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error) {
	desc, err := l.catalog.Describe(id)
	if err != nil {
		return nil, err
	}

	q = q.Normalize()
	start := time.Now()

	l.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoadStart,
		Level:     observability.LevelVerbose,
		Timestamp: start,
		Source:    "loader.Load",
		Data:      map[string]any{"dataset": id, "key": q.Key(id)},
	})

	table, err := l.load(ctx, desc, q)
	if err != nil {
		l.observer.OnEvent(ctx, observability.Event{
			Type:      EventLoadError,
			Level:     observability.LevelError,
			Timestamp: time.Now(),
			Source:    "loader.Load",
			Data: map[string]any{
				"dataset":  id,
				"error":    err.Error(),
				"duration": time.Since(start),
			},
		})
		return nil, err
	}

	l.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoadComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "loader.Load",
		Data: map[string]any{
			"dataset":   id,
			"rows":      table.Len(),
			"total":     table.Total,
			"truncated": table.Truncated,
			"duration":  time.Since(start),
		},
	})

	return table, nil
}

func (l *Loader) load(ctx context.Context, desc dataset.Descriptor, q dataset.Query) (*dataset.Table, error) {
	table, err := l.store.Read(context.WithoutCancel(ctx), desc.ID, q)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, desc.ID, err)
	}

	if err := validate(desc, table); err != nil {
		return nil, err
	}

	if len(q.Columns) > 0 {
		projected, err := table.Project(q.Columns)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dataset.ErrInvalidQuery, err)
		}
		table = projected
	}

	table.ID = desc.ID
	table.Total = len(table.Rows)
	if q.Limit > 0 && len(table.Rows) > q.Limit {
		table.Rows = table.Rows[:q.Limit]
		table.Truncated = true
	}
	return table, nil
}
