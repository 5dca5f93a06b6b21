package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
)

var ErrSQLNotSet = errors.New("a SQL query must be defined")

// QueryParams describes one query submission.
type QueryParams struct {
	SQL      string
	Location string
	// Parameters are bound as named parameters (@name) in SQL.
	Parameters map[string]any
	// Silent suppresses the per-poll and billing log lines.
	Silent bool
}

type submitFunc func(ctx context.Context, q QueryParams) (queryJob, error)

type BigQueryService struct {
	client    *bigquery.Client
	projectID string
	poll      poller
	submit    submitFunc
	insert    insertFunc
}

// Option tunes a BigQueryService.
type Option func(*BigQueryService)

// WithPollInterval sets the initial and maximum delay between job status calls.
func WithPollInterval(initial, max time.Duration) Option {
	return func(s *BigQueryService) {
		if initial > 0 {
			s.poll.initial = initial
		}
		if max >= s.poll.initial {
			s.poll.max = max
		}
	}
}

func NewBigQueryService(ctx context.Context, creds Credentials, opts ...Option) (*BigQueryService, error) {
	client, err := bigquery.NewClient(ctx, creds.ProjectID, creds.ClientOptions()...)
	if err != nil {
		return nil, err
	}
	s := newBigQueryService(creds.ProjectID, opts...)
	s.client = client
	s.submit = s.submitQuery
	s.insert = s.putRows
	return s, nil
}

func newBigQueryService(projectID string, opts ...Option) *BigQueryService {
	s := &BigQueryService{
		projectID: projectID,
		poll:      poller{initial: time.Second, max: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BigQueryService) ProjectID() string {
	return s.projectID
}

func (s *BigQueryService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *BigQueryService) submitQuery(ctx context.Context, qp QueryParams) (queryJob, error) {
	q := s.client.Query(qp.SQL)
	q.Location = qp.Location
	q.Parameters = queryParameters(qp.Parameters)
	job, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}
	return bqJob{job: job}, nil
}

func queryParameters(params map[string]any) []bigquery.QueryParameter {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]bigquery.QueryParameter, 0, len(names))
	for _, name := range names {
		out = append(out, bigquery.QueryParameter{Name: name, Value: params[name]})
	}
	return out
}

// run submits the query and blocks until the job is done.
func (s *BigQueryService) run(ctx context.Context, qp QueryParams) (queryJob, JobStats, error) {
	if strings.TrimSpace(qp.SQL) == "" {
		return nil, JobStats{}, ErrSQLNotSet
	}
	job, err := s.submit(ctx, qp)
	if err != nil {
		return nil, JobStats{}, fmt.Errorf("failed to start query job: %w", err)
	}
	if !qp.Silent {
		slog.InfoContext(ctx, "Query job submitted", "job_id", job.ID(), "location", qp.Location)
	}

	status, err := s.poll.wait(ctx, job, qp.Silent)
	if err != nil {
		return nil, JobStats{}, err
	}
	stats := statsOf(job.ID(), status)
	if !qp.Silent {
		logStats(ctx, stats)
	}
	return job, stats, nil
}

// Query runs SQL and materializes the whole result set.
func (s *BigQueryService) Query(ctx context.Context, qp QueryParams) (*Table, error) {
	job, stats, err := s.run(ctx, qp)
	if err != nil {
		return nil, err
	}
	table, err := materialize(ctx, job)
	if err != nil {
		return nil, err
	}
	table.Stats = stats
	return table, nil
}

// Exec runs a statement for its side effects (DDL, DML, procedure calls)
// and discards any rows.
func (s *BigQueryService) Exec(ctx context.Context, sql, location string, silent bool) (JobStats, error) {
	_, stats, err := s.run(ctx, QueryParams{SQL: sql, Location: location, Silent: silent})
	return stats, err
}
