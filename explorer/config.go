package explorer

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/datashelf/cache"
	"github.com/tailored-agentic-units/datashelf/catalog"
	"github.com/tailored-agentic-units/datashelf/probe"
	"github.com/tailored-agentic-units/datashelf/session"
	"github.com/tailored-agentic-units/datashelf/storage"
)

// Cache classes configured by default.
const (
	ClassPrimary   = "primary"
	ClassReference = "reference"
	ClassLookup    = "lookup"
)

const (
	defaultCleanupInterval = time.Minute
	defaultObserver        = "slog"
)

// Config holds initialization parameters for all explorer subsystems.
// Each section delegates to that subsystem's config-driven constructor.
type Config struct {
	Catalog  catalog.Config `json:"catalog" yaml:"catalog"`
	Storage  storage.Config `json:"storage" yaml:"storage"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Session  session.Config `json:"session" yaml:"session"`
	Probe    probe.Config   `json:"probe" yaml:"probe"`
	Clubs    ClubsConfig    `json:"clubs" yaml:"clubs"`
	Observer string         `json:"observer,omitempty" yaml:"observer,omitempty"`
}

// CacheConfig bounds one cache per dataset class.
type CacheConfig struct {
	Classes map[string]cache.Policy `json:"classes,omitempty" yaml:"classes,omitempty"`

	// CleanupInterval is how often expired entries are purged in the
	// background. Zero leaves expiry to lookups.
	CleanupInterval cache.Duration `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Catalog: catalog.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Classes: map[string]cache.Policy{
				ClassPrimary:   cache.DefaultPolicy(),
				ClassReference: {TTL: time.Hour, MaxEntries: 1},
				ClassLookup:    {TTL: 30 * time.Minute, MaxEntries: 20},
			},
			CleanupInterval: cache.Duration{Duration: defaultCleanupInterval},
		},
		Session:  session.DefaultConfig(),
		Probe:    probe.DefaultConfig(),
		Clubs:    DefaultClubsConfig(),
		Observer: defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method. Class policies merge per class.
func (c *Config) Merge(source *Config) {
	c.Catalog.Merge(&source.Catalog)
	c.Storage.Merge(&source.Storage)
	c.Cache.Merge(&source.Cache)
	c.Session.Merge(&source.Session)
	c.Probe.Merge(&source.Probe)
	c.Clubs.Merge(&source.Clubs)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Merge applies non-zero values from source into c.
func (c *CacheConfig) Merge(source *CacheConfig) {
	if len(source.Classes) > 0 {
		merged := maps.Clone(c.Classes)
		if merged == nil {
			merged = make(map[string]cache.Policy, len(source.Classes))
		}
		for name, p := range source.Classes {
			base := merged[name]
			base.Merge(&p)
			merged[name] = base
		}
		c.Classes = merged
	}
	if source.CleanupInterval.Duration != 0 {
		c.CleanupInterval = source.CleanupInterval
	}
}

// LoadConfig reads a JSON or YAML config file, merges it with defaults, and
// returns the resulting Config. Files ending in .json are parsed as JSON.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		err = json.Unmarshal(data, &loaded)
	} else {
		err = yaml.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
