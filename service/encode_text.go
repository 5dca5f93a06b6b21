package service

import (
	"io"
	"strings"
	"text/tabwriter"

	"cloud.google.com/go/bigquery"
)

// Tabs and newlines would break the column layout.
var cellFlattener = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// encodeText writes an aligned, human readable table.
func encodeText(w io.Writer, t *Table, opts WriteOptions) error {
	null := opts.NullValue
	if null == "" {
		null = "NULL"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		if _, err := io.WriteString(tw, strings.Join(t.Columns(), "\t")+"\n"); err != nil {
			return err
		}
	}
	cells := make([]string, len(t.Schema))
	for _, row := range t.Rows {
		for i := range cells {
			var v bigquery.Value
			if i < len(row) {
				v = row[i]
			}
			cells[i] = cellFlattener.Replace(formatCell(v, t.Schema[i], null))
		}
		if _, err := io.WriteString(tw, strings.Join(cells, "\t")+"\n"); err != nil {
			return err
		}
	}
	return tw.Flush()
}
