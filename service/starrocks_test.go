package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreateTable(t *testing.T) {
	ddl, err := buildCreateTable(sampleTable().Schema, "analytics.scores")
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `analytics`.`scores` (")
	assert.Contains(t, ddl, "`id` BIGINT,\n\t`name` VARCHAR(1024),\n\t`score` DOUBLE")
	assert.Contains(t, ddl, "DUPLICATE KEY (`id`)")
	assert.Contains(t, ddl, "DISTRIBUTED BY HASH(`id`) BUCKETS 8")

	_, err = buildCreateTable(sampleTable().Schema, "")
	require.ErrorIs(t, err, ErrInvalidTableID)

	_, err = buildCreateTable(bigquery.Schema{}, "t")
	require.Error(t, err)

	_, err = buildCreateTable(bigquery.Schema{{Name: "tags", Type: bigquery.StringFieldType, Repeated: true}}, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"tags"`)
}

func TestQuoteTableName(t *testing.T) {
	for in, want := range map[string]string{
		"export":        "`export`",
		"analytics.t_1": "`analytics`.`t_1`",
		"_tmp":          "`_tmp`",
	} {
		got, err := quoteTableName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{
		"",
		"a.b.c",
		"db.",
		"1abc",
		"t; DROP TABLE users",
		"t` (x INT); --",
		"db.t/*",
	} {
		_, err := quoteTableName(in)
		require.ErrorIs(t, err, ErrInvalidTableID, in)
	}
}

func TestLoadTableRejectsInvalidNameBeforeSQL(t *testing.T) {
	s := &StarRocksService{batchSize: 10}
	_, err := s.LoadTable(context.Background(), sampleTable(), "x; DROP DATABASE prod", "")
	require.ErrorIs(t, err, ErrInvalidTableID)
}

func TestBuildBatchInsert(t *testing.T) {
	table := sampleTable()
	stmt, args := buildBatchInsert("scores", []string{"`id`", "`name`", "`score`"}, table.Schema, table.Rows)
	assert.Equal(t, "INSERT INTO scores (`id`, `name`, `score`) VALUES (?, ?, ?), (?, ?, ?)", stmt)
	assert.Equal(t, []any{int64(1), "alice", 9.5, int64(2), "bob", nil}, args)
}

func TestMapSRType(t *testing.T) {
	tests := map[bigquery.FieldType]string{
		bigquery.StringFieldType:     "VARCHAR(1024)",
		bigquery.IntegerFieldType:    "BIGINT",
		bigquery.TimestampFieldType:  "DATETIME",
		bigquery.DateFieldType:       "DATE",
		bigquery.NumericFieldType:    "DECIMAL(38,9)",
		bigquery.JSONFieldType:       "JSON",
		bigquery.BigNumericFieldType: "VARCHAR(1024)",
	}
	for ft, want := range tests {
		assert.Equal(t, want, mapSRType(&bigquery.FieldSchema{Type: ft}), string(ft))
	}
}

func TestConvertValues(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "d", Type: bigquery.DateFieldType},
		{Name: "dt", Type: bigquery.DateTimeFieldType},
		{Name: "n", Type: bigquery.NumericFieldType},
		{Name: "ts", Type: bigquery.TimestampFieldType},
		{Name: "missing", Type: bigquery.StringFieldType},
	}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dt := civil.DateTime{
		Date: civil.Date{Year: 2026, Month: 4, Day: 5},
		Time: civil.Time{Hour: 6, Minute: 7, Second: 8},
	}
	out := convertValues([]bigquery.Value{civil.Date{Year: 2026, Month: 4, Day: 5}, dt, big.NewRat(3, 2), ts}, schema)
	assert.Equal(t, []any{"2026-04-05", "2026-04-05 06:07:08", "1.500000000", ts, nil}, out)

	big38, ok := new(big.Rat).SetString("0.12345678901234567890123456789012345678")
	require.True(t, ok)
	out = convertValues(
		[]bigquery.Value{big38, []bigquery.Value{int64(1), "x"}},
		bigquery.Schema{
			{Name: "b", Type: bigquery.BigNumericFieldType},
			{Name: "rec", Type: bigquery.RecordFieldType, Schema: bigquery.Schema{
				{Name: "a", Type: bigquery.IntegerFieldType},
				{Name: "b", Type: bigquery.StringFieldType},
			}},
		})
	assert.Equal(t, []any{"0.12345678901234567890123456789012345678", `{"a":1,"b":"x"}`}, out)
}
