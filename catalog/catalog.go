// Package catalog holds the registry of available datasets. Registration
// records descriptors only; no dataset contents are ever read here.
package catalog

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// Registry is an immutable set of dataset descriptors keyed by ID. It is
// safe for concurrent use.
type Registry struct {
	descriptors map[string]dataset.Descriptor
	ids         []string
}

// New validates descriptors and builds a Registry. Every problem found is
// reported in the returned error.
func New(descriptors ...dataset.Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]dataset.Descriptor, len(descriptors))}

	var errs *multierror.Error
	for _, d := range descriptors {
		if err := validate(d); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, exists := r.descriptors[d.ID]; exists {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, d.ID))
			continue
		}
		r.descriptors[d.ID] = d.Clone()
		r.ids = append(r.ids, d.ID)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	sort.Strings(r.ids)
	return r, nil
}

// List returns every descriptor, sorted by ID.
func (r *Registry) List() []dataset.Descriptor {
	out := make([]dataset.Descriptor, len(r.ids))
	for i, id := range r.ids {
		out[i] = r.descriptors[id].Clone()
	}
	return out
}

// Describe returns the descriptor registered under id.
func (r *Registry) Describe(id string) (dataset.Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return dataset.Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d.Clone(), nil
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	return len(r.ids)
}

func validate(d dataset.Descriptor) error {
	if d.ID == "" {
		return ErrEmptyID
	}

	var errs *multierror.Error
	seen := make(map[string]bool, len(d.Schema))
	for i, c := range d.Schema {
		switch {
		case c.Name == "":
			errs = multierror.Append(errs, fmt.Errorf("%s: column %d has no name", d.ID, i))
		case seen[c.Name]:
			errs = multierror.Append(errs, fmt.Errorf("%s: duplicate column %q", d.ID, c.Name))
		}
		seen[c.Name] = true
		if !c.Type.IsValid() {
			errs = multierror.Append(errs, fmt.Errorf("%s: column %q has unknown type %q", d.ID, c.Name, c.Type))
		}
	}

	if len(d.Schema) > 0 {
		if d.DateColumn != "" && !seen[d.DateColumn] {
			errs = multierror.Append(errs, fmt.Errorf("%s: date column %q is not in the schema", d.ID, d.DateColumn))
		}
		for _, c := range d.ClubColumns {
			if !seen[c] {
				errs = multierror.Append(errs, fmt.Errorf("%s: club column %q is not in the schema", d.ID, c))
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}
