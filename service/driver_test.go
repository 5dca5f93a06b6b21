package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{
		"":          DriverGCS,
		"gcs":       DriverGCS,
		"download":  DriverDownload,
		"StarRocks": DriverStarRocks,
	} {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := NormalizeDriver("bigtable")
	require.Error(t, err)
}

func TestGCSDriver(t *testing.T) {
	wh := &fakeWarehouse{}
	res, err := NewGCSDriver().Execute(context.Background(), wh, ExportParams{
		Query:         "SELECT 1",
		Output:        "gs://bucket/out",
		QueryLocation: "US",
		Format:        "csv",
		Options:       WriteOptions{Delimiter: '|', NoHeader: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/out/export-*.csv", res.GCSPath)

	require.Len(t, wh.extracts, 1)
	got := wh.extracts[0]
	assert.Equal(t, ExportCSV, got.Format)
	assert.Equal(t, "|", got.FieldDelimiter)
	assert.False(t, got.Header)
	assert.Equal(t, "US", got.QueryLocation)

	_, err = NewGCSDriver().Execute(context.Background(), wh, ExportParams{Query: "SELECT 1", Format: "xml"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDownloadDriverLocal(t *testing.T) {
	wh := &fakeWarehouse{table: sampleTable()}
	path := filepath.Join(t.TempDir(), "result.csv")
	d := NewDownloadDriver(NewOutputWriter(nil))

	res, err := d.Execute(context.Background(), wh, ExportParams{
		Query:      "SELECT * FROM t WHERE id > @min",
		Parameters: map[string]any{"min": 0},
		Output:     path,
		Format:     "CSV",
	})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.EqualValues(t, 2, res.Rows)
	require.Len(t, wh.queries, 1)
	assert.Equal(t, map[string]any{"min": 0}, wh.queries[0].Parameters)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,alice,9.5")
}

func TestDownloadDriverGCS(t *testing.T) {
	up := &fakeUploader{}
	out := NewOutputWriter(up)
	out.tempDir = t.TempDir()
	wh := &fakeWarehouse{table: sampleTable()}

	res, err := NewDownloadDriver(out).Execute(context.Background(), wh, ExportParams{
		Query:  "SELECT 1",
		Output: "gs://bucket/reports/today.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/reports/today.txt", res.GCSPath)
	require.Len(t, up.uploads, 1)
	assert.Equal(t, "reports/today.txt", up.uploads[0].object)
	assert.Contains(t, string(up.uploads[0].data), "alice")
}

func TestDownloadDriverErrors(t *testing.T) {
	d := NewDownloadDriver(NewOutputWriter(nil))
	ctx := context.Background()

	_, err := d.Execute(ctx, &fakeWarehouse{}, ExportParams{Query: "SELECT 1", Output: "gs://b/o.csv", Format: "csv"})
	require.ErrorIs(t, err, ErrUnsupportedLocation)

	_, err = d.Execute(ctx, &fakeWarehouse{}, ExportParams{Query: "SELECT 1", Output: "out.xml", Format: "xml"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	queryErr := errors.New("boom")
	wh := &fakeWarehouse{queryErr: queryErr}
	_, err = d.Execute(ctx, wh, ExportParams{Query: "SELECT 1", Output: filepath.Join(t.TempDir(), "x.csv"), Format: "csv"})
	require.ErrorIs(t, err, queryErr)
}

func TestDownloadDriverConfineLocal(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	base := NewDownloadDriver(NewOutputWriter(nil))

	_, err := base.ConfineLocal("").Execute(ctx, &fakeWarehouse{table: sampleTable()}, ExportParams{Query: "SELECT 1", Output: "out.csv"})
	require.ErrorIs(t, err, ErrOutputNotAllowed)

	confined := base.ConfineLocal(root)
	for _, output := range []string{"/etc/cron.d/x", "../x.csv", "a/../../x.csv"} {
		wh := &fakeWarehouse{table: sampleTable()}
		_, err := confined.Execute(ctx, wh, ExportParams{Query: "SELECT 1", Output: output, Format: "csv"})
		require.ErrorIs(t, err, ErrOutputNotAllowed, output)
		assert.Empty(t, wh.queries, output)
	}

	res, err := confined.Execute(ctx, &fakeWarehouse{table: sampleTable()}, ExportParams{Query: "SELECT 1", Output: "daily/out.csv", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "daily", "out.csv"), res.Path)
	assert.FileExists(t, res.Path)

	// The unconfined driver used by the CLI still writes anywhere.
	abs := filepath.Join(t.TempDir(), "cli.csv")
	_, err = base.Execute(ctx, &fakeWarehouse{table: sampleTable()}, ExportParams{Query: "SELECT 1", Output: abs, Format: "csv"})
	require.NoError(t, err)
	assert.FileExists(t, abs)
}
