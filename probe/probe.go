// Package probe recognizes liveness probes so they can be answered before
// any dataset work runs.
//
// The gate is a pure predicate over a typed request description. It does
// no I/O and consults no other component.
package probe

import (
	"net/http"
	"net/url"
	"strings"
)

// Response is the body written for a recognized probe.
const Response = "OK"

// Request describes the parts of an incoming request the gate inspects.
type Request struct {
	Path  string
	Query url.Values
}

// FromHTTP builds a Request from r.
func FromHTTP(r *http.Request) Request {
	return Request{Path: r.URL.Path, Query: r.URL.Query()}
}

// Gate decides whether a request is a liveness probe. A Gate is immutable
// and safe for concurrent use.
type Gate struct {
	markers []string
	paths   []string
}

// New creates a Gate from cfg. Markers and paths compare case-insensitively.
func New(cfg Config) *Gate {
	g := &Gate{}
	for _, m := range cfg.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			g.markers = append(g.markers, m)
		}
	}
	for _, p := range cfg.Paths {
		if p = strings.ToLower(strings.Trim(p, "/ ")); p != "" {
			g.paths = append(g.paths, p)
		}
	}
	return g
}

// IsProbe reports whether req is a liveness probe: its path ends with a
// configured probe path, or a query key or value contains a marker.
func (g *Gate) IsProbe(req Request) bool {
	return g.matchPath(req.Path) || g.matchQuery(req.Query)
}

func (g *Gate) matchPath(path string) bool {
	path = strings.ToLower(strings.TrimRight(path, "/"))
	for _, p := range g.paths {
		if path == p || path == "/"+p || strings.HasSuffix(path, "/"+p) {
			return true
		}
	}
	return false
}

func (g *Gate) matchQuery(query url.Values) bool {
	for key, values := range query {
		if g.containsMarker(key) {
			return true
		}
		for _, v := range values {
			if g.containsMarker(v) {
				return true
			}
		}
	}
	return false
}

func (g *Gate) containsMarker(s string) bool {
	s = strings.ToLower(s)
	for _, m := range g.markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
