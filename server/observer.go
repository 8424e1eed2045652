package server

import "github.com/tailored-agentic-units/datashelf/observability"

// EventRequest is emitted once per routed request.
const EventRequest observability.EventType = "server.request"
