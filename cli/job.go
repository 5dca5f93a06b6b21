package cli

import (
	"context"
	"fmt"
	"log/slog"

	"bq-operator/config"
	"bq-operator/service"

	"github.com/spf13/cobra"
)

func newJobCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "job",
		Short: "Run the export described by the JOB_* variables once and exit",
		Long: "Runs one export with the configured EXPORT_DRIVER, for Cloud Run Jobs.\n" +
			"Reads JOB_QUERY, JOB_QUERY_LOCATION, JOB_OUTPUT, JOB_FILENAME, JOB_FORMAT,\n" +
			"JOB_USE_TIMESTAMP, JOB_TABLE and JOB_CREATE_DDL.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd.Context(), a)
		},
	}
}

func jobParams(j config.JobConfig) (service.ExportParams, error) {
	if j.Query == "" || j.QueryLocation == "" {
		return service.ExportParams{}, fmt.Errorf("JOB_QUERY or JOB_QUERY_LOCATION is empty")
	}
	table := j.Table
	if j.Database != "" && table != "" {
		table = j.Database + "." + table
	}
	return service.ExportParams{
		Query:         j.Query,
		Output:        j.Output,
		Filename:      j.Filename,
		QueryLocation: j.QueryLocation,
		UseTimestamp:  j.UseTimestamp(),
		Format:        j.Format,
		Table:         table,
		CreateDDL:     j.CreateDDL,
	}, nil
}

func runJob(ctx context.Context, a *app) error {
	params, err := jobParams(a.cfg.Job)
	if err != nil {
		return err
	}
	bq, err := a.bigQuery(ctx)
	if err != nil {
		return err
	}
	driver, err := a.exportDriver(ctx, false)
	if err != nil {
		return err
	}

	res, err := driver.Execute(ctx, bq, params)
	if err != nil {
		return fmt.Errorf("job execution failed: %w", err)
	}
	slog.InfoContext(ctx, "Job execution completed",
		"gcs_path", res.GCSPath,
		"path", res.Path,
		"table", res.Table,
		"rows", res.Rows,
	)
	return nil
}
