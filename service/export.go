package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ExportFormat is a server-side EXPORT DATA format.
type ExportFormat string

const (
	ExportCSV     ExportFormat = "CSV"
	ExportJSON    ExportFormat = "JSON"
	ExportAvro    ExportFormat = "AVRO"
	ExportParquet ExportFormat = "PARQUET"
)

var exportExtensions = map[ExportFormat]string{
	ExportCSV:     ".csv",
	ExportJSON:    ".json",
	ExportAvro:    ".avro",
	ExportParquet: ".parquet",
}

// ParseExportFormat accepts any case; an empty name means PARQUET.
func ParseExportFormat(name string) (ExportFormat, error) {
	if name == "" {
		return ExportParquet, nil
	}
	f := ExportFormat(strings.ToUpper(strings.TrimSpace(name)))
	if f == "TXT" || f == "TEXT" {
		f = ExportCSV
	}
	if _, ok := exportExtensions[f]; !ok {
		return "", fmt.Errorf("%w: %q for export", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// Extension returns the file suffix including the dot.
func (f ExportFormat) Extension() string {
	return exportExtensions[f]
}

// ExtractParams describes a bulk export straight from BigQuery to a bucket.
type ExtractParams struct {
	Query         string
	Parameters    map[string]any
	Output        string
	Filename      string
	QueryLocation string
	UseTimestamp  bool
	Format        ExportFormat
	// CSV only.
	Header         bool
	FieldDelimiter string
	Compression    string
	Silent         bool
}

// buildExportURI turns an output location into a sharded export URI.
//
// A trailing "/" or an output with neither the format extension nor a
// wildcard is treated as a folder and receives "{name}[-{timestamp}]-*{ext}".
// Anything else is an explicit pattern and is used verbatim.
func buildExportURI(output, filename string, format ExportFormat, useTimestamp bool, now time.Time) string {
	ext := format.Extension()
	baseName := filename
	if baseName == "" {
		baseName = "export"
	}
	if useTimestamp {
		baseName = baseName + "-" + now.Format("20060102-150405")
	}

	switch {
	case strings.HasSuffix(output, "/"):
		return fmt.Sprintf("%s%s-*%s", output, baseName, ext)
	case !strings.HasSuffix(output, ext) && !strings.Contains(output, "*"):
		return fmt.Sprintf("%s/%s-*%s", output, baseName, ext)
	default:
		return output
	}
}

func quoteSQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func buildExportSQL(uri string, p ExtractParams) string {
	opts := []string{
		"uri=" + quoteSQLString(uri),
		"format=" + quoteSQLString(string(p.Format)),
		"overwrite=true",
	}
	if p.Format == ExportCSV {
		opts = append(opts, fmt.Sprintf("header=%t", p.Header))
		delim := p.FieldDelimiter
		if delim == "" {
			delim = ","
		}
		opts = append(opts, "field_delimiter="+quoteSQLString(delim))
	}
	if p.Compression != "" {
		opts = append(opts, "compression="+quoteSQLString(strings.ToUpper(p.Compression)))
	}
	// The query is wrapped in parentheses so trailing clauses stay attached to it.
	return fmt.Sprintf("EXPORT DATA OPTIONS(\n\t%s\n) AS\n(%s)", strings.Join(opts, ",\n\t"), p.Query)
}

// ExportQuery runs an EXPORT DATA statement and returns the destination URI.
func (s *BigQueryService) ExportQuery(ctx context.Context, p ExtractParams) (string, error) {
	if strings.TrimSpace(p.Query) == "" {
		return "", ErrSQLNotSet
	}
	if p.Format == "" {
		p.Format = ExportParquet
	}
	if _, ok := exportExtensions[p.Format]; !ok {
		return "", fmt.Errorf("%w: %q for export", ErrUnsupportedFormat, p.Format)
	}
	if !strings.HasPrefix(p.Output, "gs://") {
		return "", fmt.Errorf("export output must be a gs:// URI, got %q", p.Output)
	}

	exportURI := buildExportURI(p.Output, p.Filename, p.Format, p.UseTimestamp, time.Now())
	slog.InfoContext(ctx, "Starting BigQuery export",
		"output_uri", p.Output,
		"filename", p.Filename,
		"export_uri", exportURI,
		"format", p.Format,
		"use_timestamp", p.UseTimestamp,
	)

	_, stats, err := s.run(ctx, QueryParams{
		SQL:        buildExportSQL(exportURI, p),
		Location:   p.QueryLocation,
		Parameters: p.Parameters,
		Silent:     p.Silent,
	})
	if err != nil {
		return "", fmt.Errorf("export job failed: %w", err)
	}
	slog.InfoContext(ctx, "Export job completed successfully", "job_id", stats.JobID, "export_uri", exportURI)
	return exportURI, nil
}
