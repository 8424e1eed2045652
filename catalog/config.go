package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

const defaultClass = "primary"

// Config declares the datasets to register.
type Config struct {
	// Datasets are declared descriptors. A declared schema takes precedence
	// over a discovered header.
	Datasets []dataset.Descriptor `json:"datasets,omitempty" yaml:"datasets,omitempty"`

	// Discover registers every dataset the store lists, reading headers only.
	// Nil means enabled.
	Discover *bool `json:"discover,omitempty" yaml:"discover,omitempty"`

	// File is an optional YAML or JSON catalog file holding more descriptors.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// DefaultClass is the cache class assigned to descriptors without one.
	DefaultClass string `json:"default_class,omitempty" yaml:"default_class,omitempty"`
}

// DefaultConfig returns a configuration that discovers every stored dataset
// into the primary class.
func DefaultConfig() Config {
	return Config{DefaultClass: defaultClass}
}

// DiscoverEnabled reports whether store discovery is on.
func (c *Config) DiscoverEnabled() bool {
	return c.Discover == nil || *c.Discover
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.Datasets) > 0 {
		c.Datasets = source.Datasets
	}
	if source.Discover != nil {
		c.Discover = source.Discover
	}
	if source.File != "" {
		c.File = source.File
	}
	if source.DefaultClass != "" {
		c.DefaultClass = source.DefaultClass
	}
}

type catalogFile struct {
	Datasets []dataset.Descriptor `json:"datasets" yaml:"datasets"`
}

// LoadFile reads descriptors from a catalog file. Files ending in .json are
// parsed as JSON; anything else as YAML.
func LoadFile(path string) ([]dataset.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var doc catalogFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return doc.Datasets, nil
}
