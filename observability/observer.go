// Package observability carries the events emitted by the loader, explorer
// and server along with the Prometheus registry their metrics live in.
//
// Level values follow OpenTelemetry SeverityNumbers so an Event can be turned
// into an OTel log record without remapping.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity on the OTel SeverityNumber scale.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8)
	LevelInfo    Level = 9  // OTel INFO (9-12)
	LevelWarning Level = 13 // OTel WARN (13-16)
	LevelError   Level = 17 // OTel ERROR (17-20)
)

// String returns the OTel severity text for the range l falls in.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType names an event. Packages declare their own constants, such as
// "loader.load.complete" or "explorer.cache.evict".
type EventType string

// Event is one observation. Source is the emitting operation and Data holds
// the attributes (dataset, session, rows, error).
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

// Multi fans events out to every observer in order. Nil and no-op observers
// are dropped and nested fan-outs are flattened, so Multi of a single
// observer returns that observer.
func Multi(observers ...Observer) Observer {
	var flat multiObserver
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case multiObserver:
			flat = append(flat, o...)
		default:
			flat = append(flat, o)
		}
	}
	switch len(flat) {
	case 0:
		return NoOpObserver{}
	case 1:
		return flat[0]
	}
	return flat
}

type multiObserver []Observer

func (m multiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m {
		obs.OnEvent(ctx, event)
	}
}
