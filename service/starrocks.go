package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"bq-operator/config"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/go-sql-driver/mysql"
)

type StarRocksService struct {
	db        *sql.DB
	dbname    string
	batchSize int
}

func NewStarRocksService(ctx context.Context, cfg config.StarRocksConfig) (*StarRocksService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.DB
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to StarRocks: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	return &StarRocksService{db: db, dbname: cfg.DB, batchSize: batch}, nil
}

func (s *StarRocksService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadTable creates the StarRocks table if it doesn't exist and inserts all
// rows of t in one transaction. createDDL, when set, replaces the generated
// CREATE TABLE statement.
func (s *StarRocksService) LoadTable(ctx context.Context, t *Table, table, createDDL string) (int64, error) {
	quoted, err := quoteTableName(table)
	if err != nil {
		return 0, err
	}
	ddl := createDDL
	if ddl == "" {
		ddl, err = buildCreateTable(t.Schema, table)
		if err != nil {
			return 0, fmt.Errorf("failed to ensure StarRocks table: %w", err)
		}
	}
	slog.InfoContext(ctx, "Ensuring StarRocks table", "table", table, "database", s.dbname)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to ensure StarRocks table: %w", err)
	}

	rowsInserted, err := s.insertRows(ctx, t, quoted)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rows into StarRocks: %w", err)
	}
	slog.InfoContext(ctx, "Loaded rows into StarRocks", "table", table, "rows", rowsInserted)
	return rowsInserted, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteTableName accepts "table" or "db.table" and returns it backtick-quoted.
func quoteTableName(name string) (string, error) {
	parts := strings.Split(name, ".")
	if name == "" || len(parts) > 2 {
		return "", fmt.Errorf("%w: StarRocks table %q must be table or db.table", ErrInvalidTableID, name)
	}
	for i, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("%w: StarRocks table %q has invalid identifier %q", ErrInvalidTableID, name, p)
		}
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, "."), nil
}

// buildCreateTable uses a duplicate-key model keyed on the first column.
func buildCreateTable(schema bigquery.Schema, table string) (string, error) {
	quoted, err := quoteTableName(table)
	if err != nil {
		return "", err
	}
	if len(schema) == 0 {
		return "", fmt.Errorf("empty BigQuery schema")
	}

	var cols []string
	for _, f := range schema {
		if f.Repeated || f.Type == bigquery.RecordFieldType {
			return "", fmt.Errorf("unsupported complex type for column %q", f.Name)
		}
		cols = append(cols, fmt.Sprintf("`%s` %s", f.Name, mapSRType(f)))
	}
	dupKey := fmt.Sprintf("`%s`", schema[0].Name)

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s
)
ENGINE=OLAP
DUPLICATE KEY (%s)
DISTRIBUTED BY HASH(%s) BUCKETS 8
PROPERTIES (
	"replication_num" = "1"
)`, quoted, strings.Join(cols, ",\n\t"), dupKey, dupKey), nil
}

// insertRows expects table already quoted.
func (s *StarRocksService) insertRows(ctx context.Context, t *Table, table string) (total int64, err error) {
	cols := make([]string, 0, len(t.Schema))
	for _, f := range t.Schema {
		cols = append(cols, fmt.Sprintf("`%s`", f.Name))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(t.Rows); start += s.batchSize {
		end := min(start+s.batchSize, len(t.Rows))
		stmt, args := buildBatchInsert(table, cols, t.Schema, t.Rows[start:end])
		if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, err
		}
		total += int64(end - start)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildBatchInsert(table string, cols []string, schema bigquery.Schema, batch [][]bigquery.Value) (string, []any) {
	placeholders := make([]string, len(schema))
	for j := range placeholders {
		placeholders[j] = "?"
	}
	group := fmt.Sprintf("(%s)", strings.Join(placeholders, ", "))

	valGroups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*len(schema))
	for i := range batch {
		valGroups[i] = group
		args = append(args, convertValues(batch[i], schema)...)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(valGroups, ", "))
	return stmt, args
}

// mapSRType maps BigQuery field types to StarRocks types.
func mapSRType(f *bigquery.FieldSchema) string {
	switch f.Type {
	case bigquery.StringFieldType:
		return "VARCHAR(1024)"
	case bigquery.BytesFieldType:
		return "VARBINARY(1024)"
	case bigquery.IntegerFieldType:
		return "BIGINT"
	case bigquery.FloatFieldType:
		return "DOUBLE"
	case bigquery.BooleanFieldType:
		return "BOOLEAN"
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return "DATETIME"
	case bigquery.DateFieldType:
		return "DATE"
	case bigquery.TimeFieldType:
		return "VARCHAR(64)"
	case bigquery.NumericFieldType:
		return "DECIMAL(38,9)"
	case bigquery.GeographyFieldType:
		return "VARCHAR(2048)"
	case bigquery.JSONFieldType:
		return "JSON"
	default:
		return "VARCHAR(1024)"
	}
}

// convertValues converts BigQuery row values into types acceptable by the MySQL driver.
// Short rows are padded with NULL.
func convertValues(values []bigquery.Value, schema bigquery.Schema) []any {
	out := make([]any, len(schema))
	for i, f := range schema {
		if i >= len(values) {
			continue
		}
		switch v := values[i].(type) {
		case *big.Rat, civil.Date, civil.Time, civil.DateTime:
			out[i] = normalizeValue(v, f)
		case []bigquery.Value, map[string]bigquery.Value:
			// JSON columns from a custom DDL.
			out[i] = formatCell(v, f, "")
		default:
			out[i] = v
		}
	}
	return out
}
