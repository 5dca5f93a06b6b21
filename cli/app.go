package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"bq-operator/config"
	"bq-operator/service"
)

// app holds what every command shares: configuration, the resolved
// credentials and lazily built clients.
type app struct {
	cfg config.Config

	credentialsPath string
	projectID       string

	stderr io.Writer

	creds    *service.Credentials
	bq       *service.BigQueryService
	uploader *service.GCSUploader
	closers  []func() error
}

func (a *app) credentials(ctx context.Context) (service.Credentials, error) {
	if a.creds != nil {
		return *a.creds, nil
	}
	path := a.credentialsPath
	if path == "" {
		path = a.cfg.CredentialsFile
	}
	project := a.projectID
	if project == "" {
		project = a.cfg.ProjectID
	}
	creds, err := service.ResolveCredentials(ctx, path, project, a.cfg.AllowDefaultCredentials)
	if err != nil {
		if errors.Is(err, service.ErrCredentialsNotFound) {
			fmt.Fprintln(a.stderr, service.CredentialsHint)
		}
		return service.Credentials{}, err
	}
	a.creds = &creds
	return creds, nil
}

func (a *app) bigQuery(ctx context.Context) (*service.BigQueryService, error) {
	if a.bq != nil {
		return a.bq, nil
	}
	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	bq, err := service.NewBigQueryService(ctx, creds,
		service.WithPollInterval(a.cfg.PollInterval, a.cfg.MaxPollInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize BigQuery service: %w", err)
	}
	a.bq = bq
	a.closers = append(a.closers, bq.Close)
	return bq, nil
}

func (a *app) gcsUploader(ctx context.Context) (*service.GCSUploader, error) {
	if a.uploader != nil {
		return a.uploader, nil
	}
	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	up, err := service.NewGCSUploader(ctx, creds)
	if err != nil {
		return nil, err
	}
	a.uploader = up
	a.closers = append(a.closers, up.Close)
	return up, nil
}

// exportDriver builds the driver named by EXPORT_DRIVER. When serving, local
// download targets come from HTTP callers and are confined to LOCAL_OUTPUT_DIR.
func (a *app) exportDriver(ctx context.Context, serving bool) (service.ExportDriver, error) {
	name, err := service.NormalizeDriver(a.cfg.ExportDriver)
	if err != nil {
		return nil, err
	}
	switch name {
	case service.DriverStarRocks:
		sr, err := service.NewStarRocksService(ctx, a.cfg.StarRocks)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize StarRocks service: %w", err)
		}
		a.closers = append(a.closers, sr.Close)
		return service.NewStarRocksDriver(sr), nil
	case service.DriverDownload:
		up, err := a.gcsUploader(ctx)
		if err != nil {
			return nil, err
		}
		d := service.NewDownloadDriver(service.NewOutputWriter(up))
		if serving {
			return d.ConfineLocal(a.cfg.LocalOutputDir), nil
		}
		return d, nil
	default:
		return service.NewGCSDriver(), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to close client", "error", err)
		}
	}
	a.closers = nil
}
