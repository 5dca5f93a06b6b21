package service

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/compress"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
)

// parquetBatchRows bounds the size of each Arrow record handed to the writer.
const parquetBatchRows = 64 * 1024

var unixEpoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

func parquetCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown parquet compression %q", name)
	}
}

// arrowSchema maps BigQuery columns to Arrow. Nested and repeated columns are
// stored as JSON text.
func arrowSchema(s bigquery.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s))
	for i, f := range s {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(f *bigquery.FieldSchema) arrow.DataType {
	if f.Repeated || f.Type == bigquery.RecordFieldType {
		return arrow.BinaryTypes.String
	}
	switch f.Type {
	case bigquery.IntegerFieldType:
		return arrow.PrimitiveTypes.Int64
	case bigquery.FloatFieldType:
		return arrow.PrimitiveTypes.Float64
	case bigquery.BooleanFieldType:
		return arrow.FixedWidthTypes.Boolean
	case bigquery.BytesFieldType:
		return arrow.BinaryTypes.Binary
	case bigquery.TimestampFieldType:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	case bigquery.DateFieldType:
		return arrow.FixedWidthTypes.Date32
	default:
		// STRING, NUMERIC, BIGNUMERIC, DATETIME, TIME, GEOGRAPHY, JSON, INTERVAL
		return arrow.BinaryTypes.String
	}
}

func appendValue(b array.Builder, v bigquery.Value, f *bigquery.FieldSchema) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.Int64Builder:
		x, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		b.Append(x)
	case *array.Float64Builder:
		x, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		b.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		b.Append(x)
	case *array.BinaryBuilder:
		x, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte, got %T", v)
		}
		b.Append(x)
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
		b.Append(arrow.Timestamp(x.UnixMicro()))
	case *array.Date32Builder:
		x, ok := v.(civil.Date)
		if !ok {
			return fmt.Errorf("expected civil.Date, got %T", v)
		}
		b.Append(arrow.Date32(x.DaysSince(unixEpoch)))
	case *array.StringBuilder:
		b.Append(formatCell(v, f, ""))
	default:
		return fmt.Errorf("no parquet mapping for builder %T", b)
	}
	return nil
}

// nopCloser hides Close from the parquet writer, which closes sinks that
// implement io.Closer.
type nopCloser struct {
	io.Writer
}

func encodeParquet(w io.Writer, t *Table, opts WriteOptions) error {
	codec, err := parquetCodec(opts.Compression)
	if err != nil {
		return err
	}
	schema := arrowSchema(t.Schema)
	props := parquet.NewWriterProperties(parquet.WithCompression(codec))
	fw, err := pqarrow.NewFileWriter(schema, nopCloser{w}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	rb := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer rb.Release()

	flush := func() error {
		rec := rb.NewRecord()
		defer rec.Release()
		return fw.Write(rec)
	}

	pending := 0
	for r, row := range t.Rows {
		for i := range t.Schema {
			var v bigquery.Value
			if i < len(row) {
				v = row[i]
			}
			if err := appendValue(rb.Field(i), v, t.Schema[i]); err != nil {
				_ = fw.Close()
				return fmt.Errorf("row %d column %q: %w", r, t.Schema[i].Name, err)
			}
		}
		pending++
		if pending == parquetBatchRows {
			if err := flush(); err != nil {
				_ = fw.Close()
				return err
			}
			pending = 0
		}
	}
	if pending > 0 || t.Len() == 0 {
		if err := flush(); err != nil {
			_ = fw.Close()
			return err
		}
	}
	return fw.Close()
}
