package service

import (
	"bytes"
	"context"
	"io"
	"sync"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

type fakeJob struct {
	id        string
	states    []bigquery.State
	stats     *bigquery.JobStatistics
	statusErr error
	finalErr  error // reported once the job reaches DONE
	calls     int

	schema  bigquery.Schema
	rows    [][]bigquery.Value
	readErr error
}

func (j *fakeJob) ID() string { return j.id }

func (j *fakeJob) Status(context.Context) (jobStatus, error) {
	if j.statusErr != nil {
		return jobStatus{}, j.statusErr
	}
	i := j.calls
	if i >= len(j.states) {
		i = len(j.states) - 1
	}
	j.calls++
	st := jobStatus{State: j.states[i], Statistics: j.stats}
	if st.Done() {
		st.Err = j.finalErr
	}
	return st, nil
}

func (j *fakeJob) Read(context.Context) (rowIterator, error) {
	if j.readErr != nil {
		return nil, j.readErr
	}
	return &fakeRows{schema: j.schema, rows: j.rows}, nil
}

type fakeRows struct {
	schema bigquery.Schema
	rows   [][]bigquery.Value
	pos    int
}

func (r *fakeRows) Next(dst interface{}) error {
	if r.pos >= len(r.rows) {
		return iterator.Done
	}
	*dst.(*[]bigquery.Value) = r.rows[r.pos]
	r.pos++
	return nil
}

func (r *fakeRows) Schema() bigquery.Schema { return r.schema }

type upload struct {
	bucket, object, contentType string
	data                        []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, bucket, object, contentType string, r io.Reader) error {
	if u.err != nil {
		return u.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, upload{bucket: bucket, object: object, contentType: contentType, data: buf.Bytes()})
	return nil
}

type fakeWarehouse struct {
	table    *Table
	queryErr error
	queries  []QueryParams
	extracts []ExtractParams
}

func (w *fakeWarehouse) Query(_ context.Context, qp QueryParams) (*Table, error) {
	w.queries = append(w.queries, qp)
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	return w.table, nil
}

func (w *fakeWarehouse) ExportQuery(_ context.Context, p ExtractParams) (string, error) {
	w.extracts = append(w.extracts, p)
	return p.Output + "/export-*" + p.Format.Extension(), nil
}

func sampleTable() *Table {
	return &Table{
		Schema: bigquery.Schema{
			{Name: "id", Type: bigquery.IntegerFieldType},
			{Name: "name", Type: bigquery.StringFieldType},
			{Name: "score", Type: bigquery.FloatFieldType},
		},
		Rows: [][]bigquery.Value{
			{int64(1), "alice", 9.5},
			{int64(2), "bob", nil},
		},
	}
}
