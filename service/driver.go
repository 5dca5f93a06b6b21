package service

import (
	"context"
	"fmt"
	"strings"
)

type ExportParams struct {
	Query         string
	Parameters    map[string]any
	Output        string
	Filename      string
	QueryLocation string
	UseTimestamp  bool
	Format        string
	Options       WriteOptions
	Table         string
	CreateDDL     string
	Silent        bool
}

type ExportResult struct {
	GCSPath string
	Path    string
	Table   string
	Rows    int64
}

// Warehouse is the query surface the drivers depend on.
type Warehouse interface {
	Query(ctx context.Context, qp QueryParams) (*Table, error)
	ExportQuery(ctx context.Context, p ExtractParams) (string, error)
}

// Compile-time check: BigQueryService implements Warehouse.
var _ Warehouse = (*BigQueryService)(nil)

type ExportDriver interface {
	Execute(ctx context.Context, wh Warehouse, params ExportParams) (ExportResult, error)
}

// Driver names accepted by EXPORT_DRIVER.
const (
	DriverGCS       = "GCS"
	DriverDownload  = "DOWNLOAD"
	DriverStarRocks = "STARROCKS"
)

// NormalizeDriver upper-cases name and defaults to GCS.
func NormalizeDriver(name string) (string, error) {
	d := strings.ToUpper(strings.TrimSpace(name))
	switch d {
	case "":
		return DriverGCS, nil
	case DriverGCS, DriverDownload, DriverStarRocks:
		return d, nil
	default:
		return "", fmt.Errorf("unknown export driver %q", name)
	}
}
