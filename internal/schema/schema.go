// Package schema decides what columns a warehouse table should have for an
// incoming report batch: declared hint types win, sample-value inference
// fills the gaps, and an existing table's column set is never widened.
package schema

import (
	"encoding/json"
	"time"
)

// Type is a warehouse column type.
type Type string

const (
	TypeString   Type = "STRING"
	TypeInteger  Type = "INTEGER"
	TypeFloat    Type = "FLOAT"
	TypeBoolean  Type = "BOOLEAN"
	TypeDate     Type = "DATE"
	TypeDatetime Type = "DATETIME"
)

// Field is one named, typed column.
type Field struct {
	Name string
	Type Type
}

// Row is one report row keyed by column name. Values are scalars: string,
// integer, float, bool, or a pre-normalized time.Time.
type Row = map[string]any

// Reconcile produces the ordered field list to use for one insert.
//
// columns carries the batch's column order (the first row's keys, in the
// order the connector emitted them); sample is that first row. existing is
// the live column set of a pre-existing table, or nil when the table does
// not exist yet.
//
// A key absent from a pre-existing table is dropped: schema growth is an
// explicit operator decision, not a side effect of one noisy batch.
func Reconcile(hints map[string]Type, columns []string, sample Row, existing []string) []Field {
	if len(columns) == 0 || sample == nil {
		return nil
	}

	var live map[string]bool
	if existing != nil {
		live = make(map[string]bool, len(existing))
		for _, name := range existing {
			live[name] = true
		}
	}

	fields := make([]Field, 0, len(columns))
	for _, name := range columns {
		if live != nil && !live[name] {
			continue
		}
		if t, ok := hints[name]; ok {
			fields = append(fields, Field{Name: name, Type: t})
			continue
		}
		fields = append(fields, Field{Name: name, Type: inferType(sample[name])})
	}
	return fields
}

// Columns extracts just the names from a field list, in order.
func Columns(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// inferType maps a sample value's runtime representation to a column type.
// Date-looking strings stay STRING; only hints or pre-normalized time.Time
// values produce date types.
func inferType(v any) Type {
	switch t := v.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeFloat
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TypeInteger
		}
		if _, err := t.Float64(); err == nil {
			return TypeFloat
		}
		return TypeString
	case time.Time:
		return TypeDatetime
	default:
		return TypeString
	}
}
