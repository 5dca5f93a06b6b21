package service

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/bigquery"
)

func encodeCSV(w io.Writer, t *Table, opts WriteOptions) error {
	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}
	if !opts.NoHeader {
		if err := cw.Write(t.Columns()); err != nil {
			return err
		}
	}
	record := make([]string, len(t.Schema))
	for _, row := range t.Rows {
		for i := range record {
			var v bigquery.Value
			if i < len(row) {
				v = row[i]
			}
			record[i] = formatCell(v, t.Schema[i], opts.NullValue)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatCell renders a BigQuery value of column f as plain text. Repeated and
// RECORD values are written as JSON.
func formatCell(v bigquery.Value, f *bigquery.FieldSchema, null string) string {
	switch x := normalizeValue(v, f).(type) {
	case nil:
		return null
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
