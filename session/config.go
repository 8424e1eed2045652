package session

import (
	"time"

	"github.com/tailored-agentic-units/datashelf/cache"
)

const defaultIdleTimeout = 2 * time.Hour

// Config holds session manager parameters. A zero IdleTimeout keeps
// sessions until they are ended explicitly.
type Config struct {
	IdleTimeout cache.Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{IdleTimeout: cache.Duration{Duration: defaultIdleTimeout}}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.IdleTimeout.Duration != 0 {
		c.IdleTimeout = source.IdleTimeout
	}
}
