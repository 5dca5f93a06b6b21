package service

import (
	"cloud.google.com/go/bigquery"
)

// Table is a fully materialized query result.
type Table struct {
	Schema bigquery.Schema
	Rows   [][]bigquery.Value
	Stats  JobStats
}

// JobStats carries the billing figures reported for a finished job.
type JobStats struct {
	JobID               string
	TotalBytesProcessed int64
	TotalBytesBilled    int64
}

// Columns returns the column names in schema order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.Schema))
	for i, f := range t.Schema {
		cols[i] = f.Name
	}
	return cols
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Records returns the rows keyed by column name, for JSON responses. Values
// are normalized so NUMERIC, civil and RECORD values keep their precision and
// field names.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Schema))
		for i, f := range t.Schema {
			var v bigquery.Value
			if i < len(row) {
				v = row[i]
			}
			rec[f.Name] = normalizeValue(v, f)
		}
		out = append(out, rec)
	}
	return out
}
