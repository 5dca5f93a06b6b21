package service

import (
	"context"
)

// GCSDriver exports server-side with EXPORT DATA, so results never pass
// through this process. BigQuery shards the output in files of at most 1GB.
type GCSDriver struct{}

func NewGCSDriver() *GCSDriver {
	return &GCSDriver{}
}

func (d *GCSDriver) Execute(ctx context.Context, wh Warehouse, params ExportParams) (ExportResult, error) {
	format, err := ParseExportFormat(params.Format)
	if err != nil {
		return ExportResult{}, err
	}
	extract := ExtractParams{
		Query:         params.Query,
		Parameters:    params.Parameters,
		Output:        params.Output,
		Filename:      params.Filename,
		QueryLocation: params.QueryLocation,
		UseTimestamp:  params.UseTimestamp,
		Format:        format,
		Header:        !params.Options.NoHeader,
		Compression:   params.Options.Compression,
		Silent:        params.Silent,
	}
	if params.Options.Delimiter != 0 {
		extract.FieldDelimiter = string(params.Options.Delimiter)
	}
	path, err := wh.ExportQuery(ctx, extract)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{GCSPath: path}, nil
}
