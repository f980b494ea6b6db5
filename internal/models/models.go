// package models defines the data model for the list sync pipeline
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column describes one input column.
type Column struct {
	Name string // Column name as it appears in the source
	Type string // Declared type (source specific, e.g. "string", "TEXT", "int8")
}

// Schema is the ordered list of columns produced by a row source.
type Schema struct {
	Columns []Column
}

// NewSchema builds a [Schema] of untyped ("string") columns from names.
func NewSchema(names ...string) Schema {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: "string"}
	}
	return Schema{Columns: cols}
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column with exactly this name exists.
func (s Schema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Lookup finds a column by name, ignoring case. Exact matches win over case-folded ones.
func (s Schema) Lookup(name string) (Column, bool) {
	var found *Column
	for i, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
		if found == nil && strings.EqualFold(c.Name, name) {
			found = &s.Columns[i]
		}
	}
	if found == nil {
		return Column{}, false
	}
	return *found, true
}

// Row is one input record: an ordered mapping from column name to a scalar or JSON value.
//
// Values are whatever the source decoded: string, []byte, bool, int64, float64, time.Time,
// json.Number, map[string]any, []any or nil.
type Row struct {
	names  []string
	values map[string]any
}

// NewRow pairs names with values positionally. Extra values are dropped; missing values are nil.
func NewRow(names []string, values []any) Row {
	r := Row{names: append([]string(nil), names...), values: make(map[string]any, len(names))}
	for i, n := range names {
		if i < len(values) {
			r.values[n] = values[i]
		} else {
			r.values[n] = nil
		}
	}
	return r
}

// RowFromMap builds a [Row] from a map, using order for the column order.
// Keys missing from order are appended in their map iteration order.
func RowFromMap(m map[string]any, order ...string) Row {
	names := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, n := range order {
		if _, ok := m[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	for n := range m {
		if !seen[n] {
			names = append(names, n)
		}
	}
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = m[n]
	}
	return NewRow(names, values)
}

// Columns returns the column names of the row in order.
func (r Row) Columns() []string {
	return append([]string(nil), r.names...)
}

// Len is the number of columns.
func (r Row) Len() int { return len(r.names) }

// Get returns the value for an exact column name.
func (r Row) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Lookup returns the value for a column ignoring case, plus the column's actual name.
func (r Row) Lookup(name string) (string, any, bool) {
	if v, ok := r.values[name]; ok {
		return name, v, true
	}
	for _, n := range r.names {
		if strings.EqualFold(n, name) {
			return n, r.values[n], true
		}
	}
	return "", nil, false
}

// Text returns the text form of an exact column; absent and null columns are "".
func (r Row) Text(name string) string {
	return TextValue(r.values[name])
}

// TextValue renders a row value as the provider expects merge-field text.
func TextValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// RunReport accumulates the outcome of one sync run.
type RunReport struct {
	RunID         string        `json:"run_id"`
	ListID        string        `json:"list_id"`
	TotalBuffered int64         `json:"pushed"`
	TotalCreated  int64         `json:"total_created"`
	TotalUpdated  int64         `json:"total_updated"`
	TotalFailed   int64         `json:"error_count"`
	Batches       int           `json:"batches"`
	Errors        []MemberError `json:"errors,omitempty"` // Email addresses are masked
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Elapsed is the wall time between start and finish.
func (r RunReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
