// Package storage reads tabular datasets from external storage. A Store is
// stateless: each call performs I/O and nothing is cached.
package storage

import (
	"context"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// Info is the cheap metadata of a stored dataset: its header and size.
// Producing it never reads past the header line.
type Info struct {
	ID      string
	Columns []string
	Bytes   int64
	Rows    int64
}

// Store translates between external storage and datasets.
type Store interface {
	// List returns the identifiers of all stored datasets.
	List(ctx context.Context) ([]string, error)
	// Stat returns the header and size of a dataset without reading its rows.
	Stat(ctx context.Context, id string) (Info, error)
	// Read materializes a dataset, keeping only rows that match the date
	// range and filters of q. Every stored column is returned and no row
	// limit is applied.
	Read(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error)
}
