package explorer

import "github.com/tailored-agentic-units/datashelf/observability"

// Explorer event types.
const (
	EventLoad         observability.EventType = "explorer.load"
	EventLoadError    observability.EventType = "explorer.load.error"
	EventEvict        observability.EventType = "explorer.cache.evict"
	EventInvalidate   observability.EventType = "explorer.cache.invalidate"
	EventSessionStart observability.EventType = "explorer.session.start"
	EventSessionEnd   observability.EventType = "explorer.session.end"
	EventWatchError   observability.EventType = "explorer.watch.error"
)
