package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Config.Backend.
const (
	BackendFile     = "file"
	BackendS3       = "s3"
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

const (
	defaultPath     = "data"
	defaultRetryMax = 3
	defaultSchema   = "public"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// file
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Watch bool   `json:"watch,omitempty" yaml:"watch,omitempty"` // invalidate cached data when files change

	// s3
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`

	// http
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	RetryMax int    `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`

	// postgres
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// DefaultConfig returns a file backend rooted at ./data.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendFile,
		Path:     defaultPath,
		RetryMax: defaultRetryMax,
		Schema:   defaultSchema,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Watch {
		c.Watch = true
	}
	if source.Bucket != "" {
		c.Bucket = source.Bucket
	}
	if source.Prefix != "" {
		c.Prefix = source.Prefix
	}
	if source.Region != "" {
		c.Region = source.Region
	}
	if source.Endpoint != "" {
		c.Endpoint = source.Endpoint
	}
	if source.AccessKeyID != "" {
		c.AccessKeyID = source.AccessKeyID
	}
	if source.SecretAccessKey != "" {
		c.SecretAccessKey = source.SecretAccessKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.RetryMax > 0 {
		c.RetryMax = source.RetryMax
	}
	if source.DSN != "" {
		c.DSN = source.DSN
	}
	if source.Schema != "" {
		c.Schema = source.Schema
	}
}

// NewStore creates the Store selected by cfg.Backend. The returned store
// may implement io.Closer.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend requires a path")
		}
		return NewFileStore(cfg.Path), nil

	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 backend requires a bucket")
		}
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil

	case BackendHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http backend requires a base_url")
		}
		return NewHTTPStore(cfg.BaseURL, cfg.RetryMax)

	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return ConnectPostgres(ctx, cfg.DSN, cfg.Schema)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
