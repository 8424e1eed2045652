package loader

import "github.com/tailored-agentic-units/datashelf/observability"

// Loader event types.
const (
	EventLoadStart    observability.EventType = "loader.load.start"
	EventLoadComplete observability.EventType = "loader.load.complete"
	EventLoadError    observability.EventType = "loader.load.error"
)
