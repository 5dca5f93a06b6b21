package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"bq-operator/service"

	"github.com/spf13/cobra"
)

// queryFlags are shared by every command that submits SQL.
type queryFlags struct {
	sql      string
	file     string
	location string
	silent   bool
	params   map[string]string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.sql, "sql", "q", "", "SQL to run")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the SQL from this file")
	cmd.Flags().StringVarP(&f.location, "location", "l", "", "Processing location of the job, e.g. US or asia-southeast1")
	cmd.Flags().BoolVarP(&f.silent, "silent", "s", false, "Do not log job progress and billing")
	cmd.Flags().StringToStringVarP(&f.params, "param", "p", nil, "Named query parameter name=value, usable as @name")
}

// query returns the SQL from --sql or --file.
func (f *queryFlags) query() (string, error) {
	if f.sql != "" && f.file != "" {
		return "", fmt.Errorf("--sql and --file are mutually exclusive")
	}
	sql := f.sql
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return "", fmt.Errorf("failed to read SQL file: %w", err)
		}
		sql = string(data)
	}
	if strings.TrimSpace(sql) == "" {
		return "", service.ErrSQLNotSet
	}
	return sql, nil
}

// parameters infers INT64, FLOAT64 and BOOL (only "true" or "false") values;
// anything else is a STRING.
func (f *queryFlags) parameters() map[string]any {
	if len(f.params) == 0 {
		return nil
	}
	out := make(map[string]any, len(f.params))
	for name, raw := range f.params {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out[name] = i
		} else if fl, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(fl, 0) && !math.IsNaN(fl) {
			out[name] = fl
		} else if raw == "true" || raw == "false" {
			out[name] = raw == "true"
		} else {
			out[name] = raw
		}
	}
	return out
}

type outputFlags struct {
	delimiter   string
	noHeader    bool
	null        string
	compression string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV field delimiter (default ,)")
	cmd.Flags().BoolVar(&f.noHeader, "no-header", false, "Omit the header row")
	cmd.Flags().StringVar(&f.null, "null", "", "Text written for NULL values")
	cmd.Flags().StringVar(&f.compression, "compression", "", "Compression codec (parquet: snappy, gzip, zstd, none)")
}

func (f *outputFlags) options() (service.WriteOptions, error) {
	opts := service.WriteOptions{
		NoHeader:    f.noHeader,
		NullValue:   f.null,
		Compression: f.compression,
	}
	if f.delimiter != "" {
		if utf8.RuneCountInString(f.delimiter) != 1 {
			return opts, fmt.Errorf("--delimiter must be a single character, got %q", f.delimiter)
		}
		opts.Delimiter, _ = utf8.DecodeRuneInString(f.delimiter)
	}
	return opts, nil
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		qf     queryFlags
		of     outputFlags
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Run a query and write the result to a local file or a single gs:// object",
		Long: "Runs the query, materializes the whole result in memory and writes it in the\n" +
			"requested format. A gs://bucket/object output is encoded to a temporary file\n" +
			"first and uploaded as one object, avoiding the 1GB sharding of EXPORT DATA.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sql, err := qf.query()
			if err != nil {
				return err
			}
			opts, err := of.options()
			if err != nil {
				return err
			}
			location, _, err := service.ParseTarget(output)
			if err != nil {
				return err
			}
			if _, err := service.ParseFormat(format); err != nil {
				return err
			}

			bq, err := a.bigQuery(ctx)
			if err != nil {
				return err
			}
			var uploader service.ObjectUploader
			if location == service.LocationGCS {
				up, err := a.gcsUploader(ctx)
				if err != nil {
					return err
				}
				uploader = up
			}

			res, err := service.NewDownloadDriver(service.NewOutputWriter(uploader)).Execute(ctx, bq, service.ExportParams{
				Query:         sql,
				Parameters:    qf.parameters(),
				Output:        output,
				QueryLocation: qf.location,
				Format:        format,
				Options:       opts,
				Silent:        qf.silent,
			})
			if err != nil {
				return err
			}
			dest := res.Path
			if dest == "" {
				dest = res.GCSPath
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", res.Rows, dest)
			return nil
		},
	}
	qf.register(cmd)
	of.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "./outputs/test.txt", "Local path or gs://bucket/object")
	cmd.Flags().StringVar(&format, "format", string(service.FormatText), "Output format: csv, parquet or txt")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		qf           queryFlags
		of           outputFlags
		output       string
		filename     string
		format       string
		useTimestamp bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Export a query result straight from BigQuery to Cloud Storage",
		Long: "Wraps the query in an EXPORT DATA statement. BigQuery writes the files itself,\n" +
			"sharded in objects of at most 1GB, so nothing is downloaded locally.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sql, err := qf.query()
			if err != nil {
				return err
			}
			opts, err := of.options()
			if err != nil {
				return err
			}
			if _, err := service.ParseExportFormat(format); err != nil {
				return err
			}

			bq, err := a.bigQuery(ctx)
			if err != nil {
				return err
			}
			res, err := service.NewGCSDriver().Execute(ctx, bq, service.ExportParams{
				Query:         sql,
				Parameters:    qf.parameters(),
				Output:        output,
				Filename:      filename,
				QueryLocation: qf.location,
				UseTimestamp:  useTimestamp,
				Format:        format,
				Options:       opts,
				Silent:        qf.silent,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.GCSPath)
			return nil
		},
	}
	qf.register(cmd)
	of.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "gs:// folder or explicit pattern such as gs://bucket/out-*.csv")
	cmd.Flags().StringVar(&filename, "filename", "", "File name prefix inside a folder output (default export)")
	cmd.Flags().StringVar(&format, "format", string(service.ExportParquet), "Export format: csv, json, avro or parquet")
	cmd.Flags().BoolVar(&useTimestamp, "timestamp", false, "Add a timestamp to the file name prefix")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newExecCmd(a *app) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a statement or stored procedure and wait for it to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sql, err := qf.query()
			if err != nil {
				return err
			}
			bq, err := a.bigQuery(ctx)
			if err != nil {
				return err
			}
			stats, err := bq.Exec(ctx, sql, qf.location, qf.silent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s done, %d bytes processed\n", stats.JobID, stats.TotalBytesProcessed)
			return nil
		},
	}
	qf.register(cmd)
	return cmd
}

func newStreamCmd(a *app) *cobra.Command {
	var (
		tableID string
		rowJSON string
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream one JSON row into a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			row, err := decodeRow(rowJSON)
			if err != nil {
				return err
			}
			bq, err := a.bigQuery(ctx)
			if err != nil {
				return err
			}
			if err := bq.InsertRow(ctx, tableID, row); err != nil {
				return err
			}
			slog.InfoContext(ctx, "New rows have been added", "table", tableID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tableID, "table", "t", "", "Target table: project.dataset.table or dataset.table")
	cmd.Flags().StringVarP(&rowJSON, "row", "r", "", `Row as a JSON object, e.g. '{"name":"a","n":1}'`)
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("row")
	return cmd
}

func decodeRow(s string) (map[string]any, error) {
	var row map[string]any
	if err := json.Unmarshal([]byte(s), &row); err != nil {
		return nil, fmt.Errorf("row must be a JSON object: %w", err)
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("row must not be empty")
	}
	return row, nil
}
