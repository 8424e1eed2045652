package observability

import (
	"context"
	"log/slog"
	"slices"
)

// SlogObserver writes events as slog records. The event type is the message,
// the event timestamp is the record time, and Data keys become attributes in
// sorted order after "source".
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver returns an observer writing to logger. A nil logger
// follows slog.Default at emit time, so a later slog.SetDefault is honored.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	level := event.Level.SlogLevel()
	if !logger.Enabled(ctx, level) {
		return
	}

	record := slog.NewRecord(event.Timestamp, level, string(event.Type), 0)
	if event.Source != "" {
		record.AddAttrs(slog.String("source", event.Source))
	}
	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		record.AddAttrs(attr(k, event.Data[k]))
	}

	_ = logger.Handler().Handle(ctx, record)
}

func attr(key string, v any) slog.Attr {
	if err, ok := v.(error); ok {
		return slog.String(key, err.Error())
	}
	return slog.Any(key, v)
}
