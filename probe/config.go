package probe

// Config lists what identifies a probe.
type Config struct {
	// Markers match when contained in any query key or value.
	Markers []string `json:"markers,omitempty" yaml:"markers,omitempty"`
	// Paths match the trailing segments of the request path.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// DefaultConfig returns the markers and paths used by hosted platform
// health checks.
func DefaultConfig() Config {
	return Config{
		Markers: []string{"health", "check", "script-health-check", "healthz"},
		Paths:   []string{"healthz", "livez", "_stcore/health"},
	}
}

// Merge applies non-empty values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.Markers) > 0 {
		c.Markers = source.Markers
	}
	if len(source.Paths) > 0 {
		c.Paths = source.Paths
	}
}
