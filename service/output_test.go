package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"csv":     FormatCSV,
		"CSV":     FormatCSV,
		"parquet": FormatParquet,
		"txt":     FormatText,
		"Text":    FormatText,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("avro")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseTarget(t *testing.T) {
	loc, target, err := ParseTarget("gs://bucket/dir/file.csv")
	require.NoError(t, err)
	assert.Equal(t, LocationGCS, loc)
	assert.Equal(t, Target{Bucket: "bucket", Object: "dir/file.csv"}, target)
	assert.Equal(t, "gs://bucket/dir/file.csv", target.String())

	loc, target, err = ParseTarget("./outputs/test.txt")
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, loc)
	assert.Equal(t, "./outputs/test.txt", target.String())

	_, _, err = ParseTarget("gs://bucket")
	require.Error(t, err)
	_, _, err = ParseTarget("gs:///object")
	require.Error(t, err)
	_, _, err = ParseTarget("")
	require.Error(t, err)
}

func TestConfigureUnsupported(t *testing.T) {
	out := NewOutputWriter(nil)

	_, err := out.Configure(LocationLocal, Format("xlsx"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = out.Configure(Location("s3"), FormatCSV)
	require.ErrorIs(t, err, ErrUnsupportedLocation)

	_, err = out.Configure(LocationGCS, FormatCSV)
	require.ErrorIs(t, err, ErrUnsupportedLocation)
}

func TestWriteLocal(t *testing.T) {
	dir := t.TempDir()
	out := NewOutputWriter(nil)
	ctx := context.Background()

	t.Run("csv", func(t *testing.T) {
		write, err := out.Configure(LocationLocal, FormatCSV)
		require.NoError(t, err)
		path := filepath.Join(dir, "nested", "out.csv")
		require.NoError(t, write(ctx, sampleTable(), Target{Path: path}, WriteOptions{}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "id,name,score\n1,alice,9.5\n2,bob,\n", string(data))
	})

	t.Run("txt", func(t *testing.T) {
		write, err := out.Configure(LocationLocal, FormatText)
		require.NoError(t, err)
		path := filepath.Join(dir, "out.txt")
		require.NoError(t, write(ctx, sampleTable(), Target{Path: path}, WriteOptions{}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "id  name   score\n1   alice  9.5\n2   bob    NULL\n", string(data))
	})

	t.Run("parquet", func(t *testing.T) {
		write, err := out.Configure(LocationLocal, FormatParquet)
		require.NoError(t, err)
		path := filepath.Join(dir, "out.parquet")
		require.NoError(t, write(ctx, sampleTable(), Target{Path: path}, WriteOptions{}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "PAR1", string(data[:4]))
	})

	t.Run("empty_path", func(t *testing.T) {
		write, err := out.Configure(LocationLocal, FormatCSV)
		require.NoError(t, err)
		require.Error(t, write(ctx, sampleTable(), Target{}, WriteOptions{}))
	})
}

func TestWriteGCS(t *testing.T) {
	ctx := context.Background()
	up := &fakeUploader{}
	out := NewOutputWriter(up)
	out.tempDir = t.TempDir()

	write, err := out.Configure(LocationGCS, FormatCSV)
	require.NoError(t, err)
	target := Target{Bucket: "bucket", Object: "exports/result.csv"}
	require.NoError(t, write(ctx, sampleTable(), target, WriteOptions{Delimiter: ';', NoHeader: true, NullValue: "\\N"}))

	require.Len(t, up.uploads, 1)
	got := up.uploads[0]
	assert.Equal(t, "bucket", got.bucket)
	assert.Equal(t, "exports/result.csv", got.object)
	assert.Equal(t, "text/csv", got.contentType)
	assert.Equal(t, "1;alice;9.5\n2;bob;\\N\n", string(got.data))

	entries, err := os.ReadDir(out.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")
}

func TestWriteGCSUploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("permission denied")}
	out := NewOutputWriter(up)
	out.tempDir = t.TempDir()

	write, err := out.Configure(LocationGCS, FormatParquet)
	require.NoError(t, err)
	err = write(context.Background(), sampleTable(), Target{Bucket: "b", Object: "o.parquet"}, WriteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gs://b/o.parquet")

	entries, err := os.ReadDir(out.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = write(context.Background(), sampleTable(), Target{Bucket: "b"}, WriteOptions{})
	require.Error(t, err)
}

func TestEncodeTextOptions(t *testing.T) {
	var buf bytes.Buffer
	table := sampleTable()
	table.Rows = append(table.Rows, []bigquery.Value{int64(3), "multi\nline", 1.0})
	require.NoError(t, encodeText(&buf, table, WriteOptions{NoHeader: true, NullValue: "-"}))
	assert.Equal(t, "1  alice       9.5\n2  bob         -\n3  multi line  1\n", buf.String())
}
