package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/storage"
)

// Discover builds a Registry from cfg and the datasets present in store.
// Stored datasets contribute their header, typed as any, and their byte size.
// Declared descriptors overlay discovered ones field by field, and declared
// datasets absent from the store are still registered. Only headers are
// read.
func Discover(ctx context.Context, store storage.Store, cfg *Config) (*Registry, error) {
	declared := append([]dataset.Descriptor(nil), cfg.Datasets...)
	if cfg.File != "" {
		fromFile, err := LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		declared = append(declared, fromFile...)
	}

	class := cfg.DefaultClass
	if class == "" {
		class = defaultClass
	}

	byID := make(map[string]int, len(declared))
	for i, d := range declared {
		if _, dup := byID[d.ID]; !dup {
			byID[d.ID] = i
		}
	}

	var discovered []dataset.Descriptor
	if store != nil && cfg.DiscoverEnabled() {
		ids, err := store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover datasets: %w", err)
		}

		var errs *multierror.Error
		for _, id := range ids {
			info, err := store.Stat(ctx, id)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			d := fromInfo(info)
			if i, ok := byID[id]; ok {
				declared[i] = overlay(d, declared[i])
				continue
			}
			discovered = append(discovered, d)
		}
		if err := errs.ErrorOrNil(); err != nil {
			return nil, fmt.Errorf("discover datasets: %w", err)
		}
	}

	all := append(declared, discovered...)
	for i := range all {
		if all[i].Class == "" {
			all[i].Class = class
		}
	}
	return New(all...)
}

func fromInfo(info storage.Info) dataset.Descriptor {
	schema := make(dataset.Schema, len(info.Columns))
	for i, name := range info.Columns {
		schema[i] = dataset.Column{Name: name, Type: dataset.TypeAny}
	}
	return dataset.Descriptor{
		ID:     info.ID,
		Schema: schema,
		Size:   dataset.Size{Rows: info.Rows, Bytes: info.Bytes},
	}
}

// overlay fills the zero fields of declared from discovered.
func overlay(discovered, declared dataset.Descriptor) dataset.Descriptor {
	if len(declared.Schema) == 0 {
		declared.Schema = discovered.Schema
	}
	if declared.Size.Rows == 0 {
		declared.Size.Rows = discovered.Size.Rows
	}
	if declared.Size.Bytes == 0 {
		declared.Size.Bytes = discovered.Size.Bytes
	}
	return declared
}
