package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported output format")
	ErrUnsupportedLocation = errors.New("unsupported output location")
)

// Format names a local serialization of a Table.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatText    Format = "txt"
)

// Location names where a serialized Table is persisted.
type Location string

const (
	LocationLocal Location = "local"
	LocationGCS   Location = "gcs"
)

// WriteOptions tunes an encoder. Zero values pick the format's defaults.
type WriteOptions struct {
	// Delimiter separates CSV fields. Defaults to ','.
	Delimiter rune
	NoHeader  bool
	// NullValue is written for NULL cells in text formats.
	NullValue string
	// Compression is the Parquet codec: snappy (default), gzip, zstd or none.
	Compression string
}

// Target is either a local Path or a Bucket/Object pair.
type Target struct {
	Path   string
	Bucket string
	Object string
}

func (t Target) String() string {
	if t.Bucket != "" {
		return "gs://" + t.Bucket + "/" + t.Object
	}
	return t.Path
}

// ParseTarget maps "gs://bucket/object" to a bucket target and anything else
// to a local path.
func ParseTarget(output string) (Location, Target, error) {
	if !strings.HasPrefix(output, "gs://") {
		if output == "" {
			return "", Target{}, fmt.Errorf("output path is empty")
		}
		return LocationLocal, Target{Path: output}, nil
	}
	bucket, object, err := parseGCSPath(output)
	if err != nil {
		return "", Target{}, err
	}
	if object == "" {
		return "", Target{}, fmt.Errorf("gcs output %q has no object name", output)
	}
	return LocationGCS, Target{Bucket: bucket, Object: object}, nil
}

// parseGCSPath extracts bucket and object key from "gs://bucket/path/to/file".
func parseGCSPath(path string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(path, "gs://")
	if trimmed == path {
		return "", "", fmt.Errorf("not a gs:// URI: %q", path)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("gs:// URI %q has no bucket", path)
	}
	if len(parts) == 2 {
		key = parts[1]
	}
	return parts[0], key, nil
}

type encodeFunc func(w io.Writer, t *Table, opts WriteOptions) error

type formatSpec struct {
	suffix      string
	contentType string
	encode      encodeFunc
}

var formats = map[Format]formatSpec{
	FormatCSV:     {suffix: ".csv", contentType: "text/csv", encode: encodeCSV},
	FormatParquet: {suffix: ".parquet", contentType: "application/vnd.apache.parquet", encode: encodeParquet},
	FormatText:    {suffix: ".txt", contentType: "text/plain; charset=utf-8", encode: encodeText},
}

// ParseFormat is case-insensitive and accepts "text" for txt.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "text" {
		f = FormatText
	}
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// WriteFunc persists a Table to a Target.
type WriteFunc func(ctx context.Context, t *Table, target Target, opts WriteOptions) error

// OutputWriter selects the writer for a (location, format) pair.
type OutputWriter struct {
	uploader ObjectUploader
	tempDir  string
}

// NewOutputWriter builds a dispatcher. uploader may be nil when only local
// output is used.
func NewOutputWriter(uploader ObjectUploader) *OutputWriter {
	return &OutputWriter{uploader: uploader}
}

// Configure returns the writer for location and format.
func (o *OutputWriter) Configure(location Location, format Format) (WriteFunc, error) {
	spec, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	switch location {
	case LocationLocal:
		return func(ctx context.Context, t *Table, target Target, opts WriteOptions) error {
			return writeLocal(ctx, spec, t, target.Path, opts)
		}, nil
	case LocationGCS:
		if o.uploader == nil {
			return nil, fmt.Errorf("%w: %q requires a storage client", ErrUnsupportedLocation, location)
		}
		return func(ctx context.Context, t *Table, target Target, opts WriteOptions) error {
			return o.writeGCS(ctx, spec, t, target, opts)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocation, location)
	}
}

func writeLocal(ctx context.Context, spec formatSpec, t *Table, path string, opts WriteOptions) error {
	if path == "" {
		return fmt.Errorf("output path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := spec.encode(f, t, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	slog.InfoContext(ctx, "Wrote query results", "path", path, "rows", t.Len())
	return nil
}

// writeGCS encodes into a temporary file and uploads it. The file is
// removed whether or not the upload succeeds.
func (o *OutputWriter) writeGCS(ctx context.Context, spec formatSpec, t *Table, target Target, opts WriteOptions) error {
	if target.Bucket == "" || target.Object == "" {
		return fmt.Errorf("gcs target needs both bucket and object, got %q", target.String())
	}
	tmp, err := os.CreateTemp(o.tempDir, "bq-operator-*"+spec.suffix)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := spec.encode(tmp, t, opts); err != nil {
		return fmt.Errorf("failed to encode %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", tmp.Name(), err)
	}
	if err := o.uploader.Upload(ctx, target.Bucket, target.Object, spec.contentType, tmp); err != nil {
		return fmt.Errorf("failed to upload %s: %w", target.String(), err)
	}
	slog.InfoContext(ctx, "Uploaded query results", "uri", target.String(), "rows", t.Len())
	return nil
}
