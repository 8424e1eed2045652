// Package dataset defines the shared vocabulary of the explorer: dataset
// descriptors and their schemas, materialized tables, and the query
// parameters that narrow a load.
package dataset

import (
	"fmt"
	"slices"
)

// ColumnType is the semantic type declared for a column.
type ColumnType string

const (
	TypeAny     ColumnType = "any"
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// IsValid reports whether t is a recognized column type. The empty type is
// treated as TypeAny.
func (t ColumnType) IsValid() bool {
	switch t {
	case "", TypeAny, TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// Column is one entry of a declared schema.
type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type,omitempty" yaml:"type,omitempty"`
}

// Schema is the ordered list of columns a dataset declares.
type Schema []Column

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the declared column with the given name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Size is the approximate size of a dataset. Either field may be zero when
// unknown.
type Size struct {
	Rows  int64 `json:"rows,omitempty" yaml:"rows,omitempty"`
	Bytes int64 `json:"bytes,omitempty" yaml:"bytes,omitempty"`
}

// Descriptor is the lightweight, immutable metadata of a registered dataset.
// Building a Descriptor never requires reading the dataset contents.
type Descriptor struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Class      string `json:"class,omitempty" yaml:"class,omitempty"`
	Schema     Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
	Size       Size   `json:"size,omitempty" yaml:"size,omitempty"`
	DateColumn string `json:"date_column,omitempty" yaml:"date_column,omitempty"`

	// ClubColumns name the columns holding club ids. A club filter matches
	// a row when any of them holds a selected club.
	ClubColumns []string `json:"club_columns,omitempty" yaml:"club_columns,omitempty"`
}

// DisplayName returns the title, falling back to the ID.
func (d Descriptor) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

// Clone returns a copy of d that shares no slices with it.
func (d Descriptor) Clone() Descriptor {
	d.Schema = slices.Clone(d.Schema)
	d.ClubColumns = slices.Clone(d.ClubColumns)
	return d
}

// ClubFilter returns the filter selecting rows that involve any of clubs,
// and false when the dataset has no club columns or clubs is empty.
func (d Descriptor) ClubFilter(clubs ...string) (Filter, bool) {
	if len(d.ClubColumns) == 0 || len(clubs) == 0 {
		return Filter{}, false
	}
	return Filter{Columns: slices.Clone(d.ClubColumns), Values: slices.Clone(clubs)}, true
}

// Table is the materialized contents of one dataset, optionally narrowed by
// a Query. Cells are kept in their textual form.
type Table struct {
	ID        string     `json:"id"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Total     int        `json:"total"`
	Truncated bool       `json:"truncated,omitempty"`
}

// Len returns the number of materialized rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	return slices.Index(t.Columns, name)
}

// Project returns a new table holding only the named columns, in the given
// order. Rows are copied; t is not modified.
func (t *Table) Project(columns []string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		j := t.ColumnIndex(name)
		if j < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		idx[i] = j
	}

	out := &Table{
		ID:        t.ID,
		Columns:   slices.Clone(columns),
		Rows:      make([][]string, len(t.Rows)),
		Total:     t.Total,
		Truncated: t.Truncated,
	}
	for r, row := range t.Rows {
		projected := make([]string, len(idx))
		for i, j := range idx {
			if j < len(row) {
				projected[i] = row[j]
			}
		}
		out.Rows[r] = projected
	}
	return out, nil
}
