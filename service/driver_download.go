package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

var ErrOutputNotAllowed = errors.New("output location not allowed")

// DownloadDriver materializes the result in memory and writes it through the
// format dispatcher, producing a single unsharded file locally or in a bucket.
type DownloadDriver struct {
	out *OutputWriter

	confined bool
	root     string
}

func NewDownloadDriver(out *OutputWriter) *DownloadDriver {
	return &DownloadDriver{out: out}
}

// ConfineLocal returns a copy of d for untrusted callers. Local outputs must
// be relative paths and are resolved inside root; an empty root disables
// local output so only gs:// targets are accepted.
func (d *DownloadDriver) ConfineLocal(root string) *DownloadDriver {
	c := *d
	c.confined = true
	c.root = root
	return &c
}

func (d *DownloadDriver) localPath(path string) (string, error) {
	if !d.confined {
		return path, nil
	}
	if d.root == "" {
		return "", fmt.Errorf("%w: local output is disabled, use a gs://bucket/object target", ErrOutputNotAllowed)
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: %q must be a relative path inside the output directory", ErrOutputNotAllowed, path)
	}
	return filepath.Join(d.root, path), nil
}

func (d *DownloadDriver) Execute(ctx context.Context, wh Warehouse, params ExportParams) (ExportResult, error) {
	location, target, err := ParseTarget(params.Output)
	if err != nil {
		return ExportResult{}, err
	}
	if location == LocationLocal {
		if target.Path, err = d.localPath(target.Path); err != nil {
			return ExportResult{}, err
		}
	}
	formatName := params.Format
	if formatName == "" {
		formatName = string(FormatText)
	}
	format, err := ParseFormat(formatName)
	if err != nil {
		return ExportResult{}, err
	}
	write, err := d.out.Configure(location, format)
	if err != nil {
		return ExportResult{}, err
	}

	table, err := wh.Query(ctx, QueryParams{
		SQL:        params.Query,
		Location:   params.QueryLocation,
		Parameters: params.Parameters,
		Silent:     params.Silent,
	})
	if err != nil {
		return ExportResult{}, err
	}
	if err := write(ctx, table, target, params.Options); err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{Rows: int64(table.Len())}
	if location == LocationGCS {
		res.GCSPath = target.String()
	} else {
		res.Path = target.Path
	}
	return res, nil
}
