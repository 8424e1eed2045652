// Package explorer is the trigger surface of datashelf. It composes the
// dataset registry, the lazy loader, one bounded cache per dataset class and
// the per-session load state into the operations a front end invokes.
//
// The explorer initializes from configuration via New, creating all
// subsystems internally. Functional options supply replacements for any
// subsystem, which is how tests inject stub stores and clocks.
//
//	x, err := explorer.New(ctx, &cfg)
//	defer x.Close()
//	sess := x.NewSession()
//	table, err := x.Load(ctx, sess.ID, session.FlagPrimary, "cur_transfers", dataset.Query{})
//
// Listing and describing datasets never read dataset contents. Contents are
// read only by Load, DateRange and the club lookups, through the class
// caches.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/datashelf/cache"
	"github.com/tailored-agentic-units/datashelf/catalog"
	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/loader"
	"github.com/tailored-agentic-units/datashelf/observability"
	"github.com/tailored-agentic-units/datashelf/probe"
	"github.com/tailored-agentic-units/datashelf/session"
	"github.com/tailored-agentic-units/datashelf/storage"
)

// Option configures an Explorer. Options run before subsystems are created;
// a subsystem supplied by an option replaces the config-created one.
type Option func(*Explorer)

// WithStore overrides the config-created storage backend.
func WithStore(s storage.Store) Option {
	return func(x *Explorer) { x.store = s }
}

// WithRegistry overrides the discovered dataset registry.
func WithRegistry(r *catalog.Registry) Option {
	return func(x *Explorer) { x.registry = r }
}

// WithObserver overrides the configured observer.
func WithObserver(o observability.Observer) Option {
	return func(x *Explorer) { x.observer = o }
}

// WithMetrics exports per-class cache metrics to r.
func WithMetrics(r *observability.MetricsRegistry) Option {
	return func(x *Explorer) { x.metrics = r }
}

// WithClock replaces the time source of caches and sessions.
func WithClock(now func() time.Time) Option {
	return func(x *Explorer) { x.now = now }
}

// Explorer serves dataset listings and on-demand loads to user sessions.
// All methods are safe for concurrent use.
type Explorer struct {
	registry *catalog.Registry
	store    storage.Store
	loader   *loader.Loader
	caches   map[string]*cache.Cache[*dataset.Table]
	sessions *session.Manager
	gate     *probe.Gate
	observer observability.Observer
	metrics  *observability.MetricsRegistry
	now      func() time.Time
	clubs    ClubsConfig

	defaultClass string
	cleanup      time.Duration
	watchPath    string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an Explorer from configuration. The storage backend is opened
// and the registry discovered unless supplied by options. Background work
// starts with Start.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Explorer, error) {
	x := &Explorer{
		now:          time.Now,
		defaultClass: cfg.Catalog.DefaultClass,
		cleanup:      cfg.Cache.CleanupInterval.Duration,
		gate:         probe.New(cfg.Probe),
		clubs:        cfg.Clubs,
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.observer == nil {
		name := cfg.Observer
		if name == "" {
			name = defaultObserver
		}
		obs, err := observability.GetObserver(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer: %w", err)
		}
		x.observer = obs
	}

	if x.store == nil {
		store, err := storage.NewStore(ctx, &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		x.store = store
		if cfg.Storage.Watch && (cfg.Storage.Backend == "" || cfg.Storage.Backend == storage.BackendFile) {
			x.watchPath = cfg.Storage.Path
		}
	}

	if x.registry == nil {
		reg, err := catalog.Discover(ctx, x.store, &cfg.Catalog)
		if err != nil {
			x.closeStore()
			return nil, fmt.Errorf("failed to build catalog: %w", err)
		}
		x.registry = reg
	}

	if err := x.initCaches(cfg.Cache.Classes); err != nil {
		x.closeStore()
		return nil, err
	}

	sessions, err := session.New(&cfg.Session, session.WithClock(x.now))
	if err != nil {
		x.closeStore()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	x.sessions = sessions

	x.loader = loader.New(x.registry, x.store, loader.WithObserver(x.observer))
	return x, nil
}

func (x *Explorer) initCaches(classes map[string]cache.Policy) error {
	if x.defaultClass == "" {
		x.defaultClass = ClassPrimary
	}

	x.caches = make(map[string]*cache.Cache[*dataset.Table], len(classes))
	for name, policy := range classes {
		opts := []cache.Option[*dataset.Table]{
			cache.WithClock[*dataset.Table](x.now),
			cache.WithEvictionCallback(x.onEvict(name)),
		}
		if x.metrics != nil {
			opts = append(opts, cache.WithMetrics[*dataset.Table](x.metrics, name))
		}
		c, err := cache.New(policy, opts...)
		if err != nil {
			return fmt.Errorf("failed to create %s cache: %w", name, err)
		}
		x.caches[name] = c
	}

	if _, ok := x.caches[x.defaultClass]; !ok {
		return fmt.Errorf("%w: default class %s", ErrUnknownClass, x.defaultClass)
	}
	for _, d := range x.registry.List() {
		if d.Class != "" {
			if _, ok := x.caches[d.Class]; !ok {
				return fmt.Errorf("%w: %s (dataset %s)", ErrUnknownClass, d.Class, d.ID)
			}
		}
	}
	return nil
}

func (x *Explorer) onEvict(class string) cache.EvictCallback[*dataset.Table] {
	return func(key string, _ *dataset.Table, reason cache.EvictReason) {
		x.observer.OnEvent(context.Background(), observability.Event{
			Type:      EventEvict,
			Level:     observability.LevelVerbose,
			Timestamp: x.now(),
			Source:    "explorer.cache",
			Data:      map[string]any{"class": class, "key": key, "reason": string(reason)},
		})
	}
}

// Start launches the background work: expired-entry purging per cache,
// idle session sweeping and, for watched file stores, cache invalidation on
// file changes. It runs until ctx is done or Close is called.
func (x *Explorer) Start(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)

	if x.watchPath != "" {
		err := storage.Watch(ctx, x.watchPath, func(id string) {
			x.Invalidate(id)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("failed to watch %s: %w", x.watchPath, err)
		}
	}

	if x.cleanup > 0 {
		for _, c := range x.caches {
			x.wg.Add(1)
			go func() {
				defer x.wg.Done()
				c.Run(ctx, x.cleanup)
			}()
		}
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			x.sessions.Run(ctx, x.cleanup)
		}()
	}

	x.cancel = cancel
	x.started = true
	return nil
}

// Close stops background work and releases the store.
func (x *Explorer) Close() error {
	x.mu.Lock()
	if x.cancel != nil {
		x.cancel()
	}
	x.mu.Unlock()

	x.wg.Wait()
	return x.closeStore()
}

func (x *Explorer) closeStore() error {
	if c, ok := x.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Gate returns the probe gate built from configuration.
func (x *Explorer) Gate() *probe.Gate {
	return x.gate
}

// List returns every registered dataset, sorted by id.
func (x *Explorer) List() []dataset.Descriptor {
	return x.registry.List()
}

// Describe returns the descriptor for id.
func (x *Explorer) Describe(id string) (dataset.Descriptor, error) {
	return x.registry.Describe(id)
}

// NewSession starts a session.
func (x *Explorer) NewSession() session.Snapshot {
	s := x.sessions.Create()
	x.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventSessionStart,
		Level:     observability.LevelVerbose,
		Timestamp: x.now(),
		Source:    "explorer.NewSession",
		Data:      map[string]any{"session": s.ID()},
	})
	return s.Snapshot()
}

// Session returns the state of session sessionID.
func (x *Explorer) Session(sessionID string) (session.Snapshot, error) {
	s, err := x.sessions.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// EndSession discards session sessionID.
func (x *Explorer) EndSession(sessionID string) error {
	if err := x.sessions.End(sessionID); err != nil {
		return err
	}
	x.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventSessionEnd,
		Level:     observability.LevelVerbose,
		Timestamp: x.now(),
		Source:    "explorer.EndSession",
		Data:      map[string]any{"session": sessionID},
	})
	return nil
}

// Select makes id the current selection of session sessionID. Load flags
// are left unchanged.
func (x *Explorer) Select(sessionID, id string) error {
	s, err := x.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if _, err := x.registry.Describe(id); err != nil {
		return err
	}
	s.SetSelection(id)
	return nil
}

// MarkLoaded records an explicit user action setting flag in session
// sessionID. No data is read.
func (x *Explorer) MarkLoaded(sessionID, flag string) error {
	s, err := x.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	s.MarkLoaded(flag)
	return nil
}

// Reset clears the named flags of session sessionID.
func (x *Explorer) Reset(sessionID string, flags ...string) error {
	s, err := x.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	s.Reset(flags...)
	return nil
}

// Load materializes dataset id narrowed by q on behalf of session sessionID
// and records the outcome under flag. Results are served from the dataset's
// class cache when present; otherwise the loader runs once per key no matter
// how many sessions ask concurrently. A successful primary load also selects
// id.
//
// Errors from the registry, session, loader and storage are returned
// unchanged. The returned table is shared with the cache and with other
// sessions and must not be modified.
func (x *Explorer) Load(ctx context.Context, sessionID, flag, id string, q dataset.Query) (*dataset.Table, error) {
	s, err := x.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	desc, err := x.registry.Describe(id)
	if err != nil {
		return nil, err
	}
	class, c := x.cacheFor(desc)

	if err := s.Begin(flag); err != nil {
		return nil, err
	}

	start := x.now()
	key := q.Key(id)
	loaded := false

	table, err := c.GetOrLoad(key, func() (*dataset.Table, error) {
		loaded = true
		return x.loader.Load(ctx, id, q)
	})
	if err != nil {
		// A concurrent Reset of flag discards the outcome.
		_ = s.Fail(flag, err)
		x.observer.OnEvent(ctx, observability.Event{
			Type:      EventLoadError,
			Level:     observability.LevelWarning,
			Timestamp: x.now(),
			Source:    "explorer.Load",
			Data: map[string]any{
				"session": sessionID,
				"flag":    flag,
				"dataset": id,
				"class":   class,
				"error":   err.Error(),
			},
		})
		return nil, err
	}

	_ = s.Complete(flag)
	if flag == session.FlagPrimary {
		s.SetSelection(id)
	}

	x.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoad,
		Level:     observability.LevelInfo,
		Timestamp: x.now(),
		Source:    "explorer.Load",
		Data: map[string]any{
			"session":  sessionID,
			"flag":     flag,
			"dataset":  id,
			"class":    class,
			"cached":   !loaded,
			"rows":     table.Len(),
			"duration": x.now().Sub(start),
		},
	})
	return table, nil
}

// DateSpan is the earliest and latest date held by a dataset's date column.
type DateSpan struct {
	Dataset string `json:"dataset"`
	Column  string `json:"column"`
	Min     string `json:"min,omitempty"`
	Max     string `json:"max,omitempty"`
}

// DateRange returns the span of dataset id's date column, for bounding date
// pickers. The column is loaded through the lookup cache class and cells
// that are empty or not dates are ignored. Session flags are not affected.
func (x *Explorer) DateRange(ctx context.Context, sessionID, id string) (DateSpan, error) {
	if _, err := x.sessions.Get(sessionID); err != nil {
		return DateSpan{}, err
	}
	desc, err := x.registry.Describe(id)
	if err != nil {
		return DateSpan{}, err
	}
	if desc.DateColumn == "" {
		return DateSpan{}, fmt.Errorf("%w: %s", ErrNoDateColumn, id)
	}

	q := dataset.Query{Columns: []string{desc.DateColumn}, Limit: dataset.NoLimit}
	table, err := x.classCache(ClassLookup, desc).GetOrLoad(q.Key(id), func() (*dataset.Table, error) {
		return x.loader.Load(ctx, id, q)
	})
	if err != nil {
		return DateSpan{}, err
	}

	span := DateSpan{Dataset: id, Column: desc.DateColumn}
	var lo, hi time.Time
	for _, row := range table.Rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		d, err := dataset.ParseDate(row[0])
		if err != nil {
			continue
		}
		if lo.IsZero() || d.Before(lo) {
			lo = d
		}
		if hi.IsZero() || d.After(hi) {
			hi = d
		}
	}
	if !lo.IsZero() {
		span.Min = lo.Format(dataset.DateLayout)
		span.Max = hi.Format(dataset.DateLayout)
	}
	return span, nil
}

// Invalidate drops every cached result of dataset id in every class and
// returns how many entries were removed.
func (x *Explorer) Invalidate(id string) int {
	removed := 0
	for _, c := range x.caches {
		removed += c.InvalidateFunc(func(key string) bool {
			return dataset.KeyBelongs(key, id)
		})
	}

	x.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventInvalidate,
		Level:     observability.LevelInfo,
		Timestamp: x.now(),
		Source:    "explorer.Invalidate",
		Data:      map[string]any{"dataset": id, "removed": removed},
	})
	return removed
}

// ClassStats pairs a cache class with its policy and counters.
type ClassStats struct {
	Class  string             `json:"class"`
	Policy cache.Policy       `json:"policy"`
	Keys   []string           `json:"keys"`
	Stats  cache.StatsSummary `json:"stats"`
}

// Stats returns cache statistics for every class, sorted by class name.
func (x *Explorer) Stats() []ClassStats {
	out := make([]ClassStats, 0, len(x.caches))
	for name, c := range x.caches {
		out = append(out, ClassStats{
			Class:  name,
			Policy: c.Policy(),
			Keys:   c.Keys(),
			Stats:  c.Stats(),
		})
	}
	slices.SortFunc(out, func(a, b ClassStats) int {
		return strings.Compare(a.Class, b.Class)
	})
	return out
}

func (x *Explorer) cacheFor(desc dataset.Descriptor) (string, *cache.Cache[*dataset.Table]) {
	if c, ok := x.caches[desc.Class]; ok {
		return desc.Class, c
	}
	return x.defaultClass, x.caches[x.defaultClass]
}

// IsRetryable reports whether err is a transient load failure worth
// retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, loader.ErrSourceUnavailable)
}
