// Package server exposes the explorer over HTTP: a JSON API for the front
// end, connect RPC procedures and Prometheus metrics.
//
// The probe gate runs before routing. A request it recognizes as a liveness
// probe is answered with the literal OK and reaches no handler.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/explorer"
	"github.com/tailored-agentic-units/datashelf/observability"
	"github.com/tailored-agentic-units/datashelf/probe"
	"github.com/tailored-agentic-units/datashelf/session"
)

// APIRoot prefixes every JSON API route.
const APIRoot = "/api"

// Explorer is the subset of *explorer.Explorer the server drives.
type Explorer interface {
	List() []dataset.Descriptor
	Describe(id string) (dataset.Descriptor, error)
	NewSession() session.Snapshot
	Session(sessionID string) (session.Snapshot, error)
	EndSession(sessionID string) error
	Select(sessionID, id string) error
	MarkLoaded(sessionID, flag string) error
	Reset(sessionID string, flags ...string) error
	Load(ctx context.Context, sessionID, flag, id string, q dataset.Query) (*dataset.Table, error)
	DateRange(ctx context.Context, sessionID, id string) (explorer.DateSpan, error)
	Clubs(ctx context.Context, sessionID string) (*explorer.ClubDirectory, error)
	ClubNames(ctx context.Context, sessionID string, leagues []string, fromSeason, toSeason int) ([]string, error)
	ResolveClubs(ctx context.Context, sessionID string, names ...string) ([]string, error)
	Stats() []explorer.ClassStats
}

// Option configures a Server.
type Option func(*Server)

// WithObserver sets the observer receiving request events.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithMetrics serves r at /metrics.
func WithMetrics(r *observability.MetricsRegistry) Option {
	return func(s *Server) { s.metrics = r }
}

// Server routes HTTP requests to an Explorer.
type Server struct {
	echo     *echo.Echo
	explorer Explorer
	gate     *probe.Gate
	observer observability.Observer
	metrics  *observability.MetricsRegistry
}

// New builds the HTTP surface for x. Requests matching gate are answered
// before routing.
func New(x Explorer, gate *probe.Gate, opts ...Option) *Server {
	s := &Server{
		explorer: x,
		gate:     gate,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(probeMiddleware(s.gate))
	e.Use(s.logRequests)

	api := e.Group(APIRoot)
	api.GET("/datasets", s.listDatasets)
	api.GET("/datasets/:id", s.describeDataset)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:sid", s.getSession)
	api.DELETE("/sessions/:sid", s.endSession)
	api.PUT("/sessions/:sid/selection", s.selectDataset)
	api.POST("/sessions/:sid/load", s.loadDataset)
	api.PUT("/sessions/:sid/flags/:flag", s.markLoaded)
	api.DELETE("/sessions/:sid/flags/:flag", s.resetFlag)
	api.GET("/sessions/:sid/datasets/:id/date-range", s.dateRange)
	api.GET("/sessions/:sid/clubs", s.listClubs)
	api.GET("/cache/stats", s.cacheStats)

	s.mountRPC(e)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.echo = e
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func probeMiddleware(gate *probe.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if gate != nil && gate.IsProbe(probe.FromHTTP(c.Request())) {
				return c.String(http.StatusOK, probe.Response)
			}
			return next(c)
		}
	}
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		s.observer.OnEvent(req.Context(), observability.Event{
			Type:      EventRequest,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "server",
			Data: map[string]any{
				"method":   req.Method,
				"path":     req.URL.Path,
				"status":   c.Response().Status,
				"duration": time.Since(start),
			},
		})
		return nil
	}
}
