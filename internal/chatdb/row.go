package chatdb

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is one result row addressed by lower-cased column name. Cells keep
// whatever loose type the driver returned; accessors coerce best-effort and
// return the zero value for NULL, missing or unconvertible cells.
type Row struct {
	index  map[string]int
	values []any
}

// NewRow builds a Row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[strings.ToLower(c)] = i
	}
	return Row{index: index, values: values}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[strings.ToLower(c)] = i
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, Row{index: index, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r Row) value(name string) any {
	i, ok := r.index[strings.ToLower(name)]
	if !ok || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Has reports whether the row has column name, NULL or not.
func (r Row) Has(name string) bool {
	_, ok := r.index[strings.ToLower(name)]
	return ok
}

// IsNull reports whether the column is missing or NULL.
func (r Row) IsNull(name string) bool {
	return r.value(name) == nil
}

// Int64 coerces the column to an int64.
func (r Row) Int64(name string) int64 {
	switch v := r.value(name).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	default:
		return 0
	}
}

// Int coerces the column to an int.
func (r Row) Int(name string) int {
	return int(r.Int64(name))
}

// Bool is true for any non-zero numeric value.
func (r Row) Bool(name string) bool {
	return r.Int64(name) != 0
}

// String coerces the column to a string.
func (r Row) String(name string) string {
	switch v := r.value(name).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Bytes returns the column as raw bytes.
func (r Row) Bytes(name string) []byte {
	switch v := r.value(name).(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}
