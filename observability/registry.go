package observability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownObserver is returned by GetObserver for an unregistered name.
var ErrUnknownObserver = errors.New("unknown observer")

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(nil),
	}
	mutex sync.RWMutex
)

// GetObserver resolves a registered observer. A comma-separated list such as
// "slog,audit" resolves each name and fans out to all of them. "noop" and
// "slog" (the default slog logger) are always registered.
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	var resolved []Observer
	for part := range strings.SplitSeq(name, ",") {
		part = strings.TrimSpace(part)
		obs, ok := observers[part]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownObserver, part)
		}
		resolved = append(resolved, obs)
	}
	return Multi(resolved...), nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// Observers lists the registered names in sorted order.
func Observers() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
