package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/bigquery"
)

var ErrInvalidTableID = errors.New("invalid table id")

// TableRef identifies a BigQuery table.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

func (r TableRef) String() string {
	return r.ProjectID + "." + r.DatasetID + "." + r.TableID
}

// ParseTableID accepts "project.dataset.table", "project:dataset.table" or
// "dataset.table" (resolved against defaultProject).
func ParseTableID(id, defaultProject string) (TableRef, error) {
	id = strings.Trim(strings.TrimSpace(id), "`")
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i] + "." + id[i+1:]
	}
	parts := strings.Split(id, ".")
	for _, p := range parts {
		if p == "" {
			return TableRef{}, fmt.Errorf("%w: %q", ErrInvalidTableID, id)
		}
	}
	switch len(parts) {
	case 3:
		return TableRef{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}, nil
	case 2:
		if defaultProject == "" {
			return TableRef{}, fmt.Errorf("%w: %q has no project and no default is set", ErrInvalidTableID, id)
		}
		return TableRef{ProjectID: defaultProject, DatasetID: parts[0], TableID: parts[1]}, nil
	default:
		return TableRef{}, fmt.Errorf("%w: %q", ErrInvalidTableID, id)
	}
}

// jsonRow streams a decoded JSON object; an empty insert ID lets the
// backend generate one.
type jsonRow map[string]any

func (r jsonRow) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out, "", nil
}

type insertFunc func(ctx context.Context, ref TableRef, rows []bigquery.ValueSaver) error

func (s *BigQueryService) putRows(ctx context.Context, ref TableRef, rows []bigquery.ValueSaver) error {
	ins := s.client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(ref.TableID).Inserter()
	return ins.Put(ctx, rows)
}

// InsertRow streams a single JSON row into tableID.
func (s *BigQueryService) InsertRow(ctx context.Context, tableID string, row map[string]any) error {
	ref, err := ParseTableID(tableID, s.projectID)
	if err != nil {
		return err
	}
	if len(row) == 0 {
		return fmt.Errorf("row for %s is empty", ref)
	}

	err = s.insert(ctx, ref, []bigquery.ValueSaver{jsonRow(row)})
	if err == nil {
		return nil
	}
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		for _, rowErr := range multi {
			slog.ErrorContext(ctx, "Encountered errors while inserting rows",
				"table", ref.String(),
				"row_index", rowErr.RowIndex,
				"error", rowErr.Errors.Error(),
			)
		}
	}
	return fmt.Errorf("failed to insert row into %s: %w", ref, err)
}
