package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// validate checks that every declared column is present and that every
// non-empty cell of a typed column parses as its type.
func validate(desc dataset.Descriptor, table *dataset.Table) error {
	type check struct {
		idx    int
		column dataset.Column
	}

	var checks []check
	var missing []string
	for _, col := range desc.Schema {
		idx := table.ColumnIndex(col.Name)
		if idx < 0 {
			missing = append(missing, col.Name)
			continue
		}
		if parser(col.Type) != nil {
			checks = append(checks, check{idx: idx, column: col})
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing columns %s", ErrSchemaMismatch, desc.ID, strings.Join(missing, ", "))
	}

	for r, row := range table.Rows {
		for _, c := range checks {
			if c.idx >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[c.idx])
			if cell == "" {
				continue
			}
			if !parser(c.column.Type)(cell) {
				return fmt.Errorf("%w: %s: row %d: column %q: %q is not a valid %s",
					ErrSchemaMismatch, desc.ID, r+1, c.column.Name, cell, c.column.Type)
			}
		}
	}
	return nil
}

// parser returns the validity check for t, or nil when t accepts any text.
func parser(t dataset.ColumnType) func(string) bool {
	switch t {
	case dataset.TypeInteger:
		return isInteger
	case dataset.TypeNumber:
		return isNumber
	case dataset.TypeBoolean:
		return isBoolean
	case dataset.TypeDate:
		return isDate
	default:
		return nil
	}
}

func isInteger(s string) bool {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	// Accept integral floats such as "27.0".
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == math.Trunc(f) && !math.IsInf(f, 0)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isBoolean(s string) bool {
	_, err := strconv.ParseBool(strings.ToLower(s))
	return err == nil
}

func isDate(s string) bool {
	_, err := dataset.ParseDate(s)
	return err == nil
}
