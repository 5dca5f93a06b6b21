// Package cli implements the bq-operator command line.
package cli

import (
	"log/slog"
	"os"

	"bq-operator/config"

	"github.com/spf13/cobra"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	a := &app{stderr: os.Stderr}
	defer a.close()

	rootCmd := newRootCmd(a)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bq-operator",
		Short: "Run BigQuery queries and persist their results",
		Long: "bq-operator submits SQL to BigQuery, waits for the job and writes the result " +
			"to a local file, a Cloud Storage bucket or StarRocks. Without a subcommand it " +
			"serves the HTTP API, or runs one export when RUN_MODE=job.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Structured logging (JSON format for Cloud Run)
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.IsJobMode() {
				return runJob(cmd.Context(), a)
			}
			return runServe(a)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.credentialsPath, "credentials", "",
		"Path to a service account JSON key (default $GOOGLE_APPLICATION_CREDENTIALS)")
	rootCmd.PersistentFlags().StringVar(&a.projectID, "project", "", "GCP project ID (default $GCP_PROJECT_ID or the key's project)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newJobCmd(a),
		newDownloadCmd(a),
		newExtractCmd(a),
		newExecCmd(a),
		newStreamCmd(a),
	)
	return rootCmd
}
