package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultLimit caps the rows materialized for a single load.
	DefaultLimit = 200000

	// NoLimit disables the row cap. It is meant for aggregate lookups that
	// must see the whole dataset, such as date spans.
	NoLimit = -1
)

// DateLayout is the canonical date representation used in queries.
const DateLayout = "2006-01-02"

// ErrInvalidQuery is returned when a query references unknown columns or
// holds malformed values.
var ErrInvalidQuery = errors.New("invalid query")

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate parses a cell holding a date or timestamp and truncates it to
// the calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// DateRange keeps rows whose Column falls within [From, To]. Bounds are
// inclusive dates in DateLayout; an empty bound is open.
type DateRange struct {
	Column string `json:"column"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// Filter keeps rows where any of Columns holds any of Values. A single
// column expresses an exact match; several columns express "either side"
// matches such as home or away club.
type Filter struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// Query narrows a load: row predicates (DateRange, Filters), a column
// projection and a row limit.
type Query struct {
	Columns   []string   `json:"columns,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
	Filters   []Filter   `json:"filters,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// Normalize returns an equivalent query in canonical form: duplicate and
// empty values removed, filter values and columns sorted, filters ordered,
// reversed date bounds swapped, a missing limit replaced by DefaultLimit and
// any negative limit collapsed to NoLimit. The projection order is preserved
// since it shapes the result.
func (q Query) Normalize() Query {
	out := Query{Limit: q.Limit}
	switch {
	case out.Limit == 0:
		out.Limit = DefaultLimit
	case out.Limit < 0:
		out.Limit = NoLimit
	}

	if len(q.Columns) > 0 {
		seen := make(map[string]bool, len(q.Columns))
		for _, c := range q.Columns {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out.Columns = append(out.Columns, c)
		}
	}

	if q.DateRange != nil && q.DateRange.Column != "" && (q.DateRange.From != "" || q.DateRange.To != "") {
		dr := *q.DateRange
		if dr.From != "" && dr.To != "" && dr.From > dr.To {
			dr.From, dr.To = dr.To, dr.From
		}
		out.DateRange = &dr
	}

	for _, f := range q.Filters {
		cols := compact(f.Columns)
		vals := compact(f.Values)
		if len(cols) == 0 || len(vals) == 0 {
			continue
		}
		out.Filters = append(out.Filters, Filter{Columns: cols, Values: vals})
	}
	slices.SortFunc(out.Filters, compareFilters)
	out.Filters = slices.CompactFunc(out.Filters, func(a, b Filter) bool {
		return compareFilters(a, b) == 0
	})

	return out
}

// Key returns the cache key for loading dataset id with q. Equivalent
// queries yield equal keys.
func (q Query) Key(id string) string {
	n := q.Normalize()
	if n.Limit == DefaultLimit && len(n.Columns) == 0 && n.DateRange == nil && len(n.Filters) == 0 {
		return id
	}
	// Marshalling a struct of strings, slices and ints cannot fail.
	data, _ := json.Marshal(n)
	return id + "?" + string(data)
}

// compareFilters orders normalized filters by columns, then values.
func compareFilters(a, b Filter) int {
	if c := slices.Compare(a.Columns, b.Columns); c != 0 {
		return c
	}
	return slices.Compare(a.Values, b.Values)
}

// KeyBelongs reports whether key was produced by Key for dataset id.
func KeyBelongs(key, id string) bool {
	return key == id || strings.HasPrefix(key, id+"?")
}

// Matcher compiles the row predicates of q against a header. The returned
// function reports whether a row satisfies every predicate.
func (q Query) Matcher(columns []string) (func(row []string) bool, error) {
	n := q.Normalize()

	type compiledFilter struct {
		idx    []int
		values map[string]bool
	}

	var filters []compiledFilter
	for _, f := range n.Filters {
		cf := compiledFilter{values: make(map[string]bool, len(f.Values))}
		for _, c := range f.Columns {
			i := slices.Index(columns, c)
			if i < 0 {
				return nil, fmt.Errorf("%w: unknown filter column %q", ErrInvalidQuery, c)
			}
			cf.idx = append(cf.idx, i)
		}
		for _, v := range f.Values {
			cf.values[v] = true
		}
		filters = append(filters, cf)
	}

	dateIdx := -1
	var from, to time.Time
	if dr := n.DateRange; dr != nil {
		dateIdx = slices.Index(columns, dr.Column)
		if dateIdx < 0 {
			return nil, fmt.Errorf("%w: unknown date column %q", ErrInvalidQuery, dr.Column)
		}
		var err error
		if dr.From != "" {
			if from, err = ParseDate(dr.From); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
		}
		if dr.To != "" {
			if to, err = ParseDate(dr.To); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
		}
	}

	return func(row []string) bool {
		if dateIdx >= 0 {
			if dateIdx >= len(row) {
				return false
			}
			d, err := ParseDate(row[dateIdx])
			if err != nil {
				return false
			}
			if !from.IsZero() && d.Before(from) {
				return false
			}
			if !to.IsZero() && d.After(to) {
				return false
			}
		}
		for _, f := range filters {
			matched := false
			for _, i := range f.idx {
				if i < len(row) && f.values[row[i]] {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
