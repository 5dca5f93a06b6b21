package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/iterator"
)

var errJobRunning = errors.New("job still running")

// queryJob is the subset of *bigquery.Job the polling loop needs.
type queryJob interface {
	ID() string
	Status(ctx context.Context) (jobStatus, error)
	Read(ctx context.Context) (rowIterator, error)
}

// jobStatus is a snapshot of a job's state. Err is the terminal error of a
// finished job.
type jobStatus struct {
	State      bigquery.State
	Statistics *bigquery.JobStatistics
	Err        error
}

func (s jobStatus) Done() bool { return s.State == bigquery.Done }

type rowIterator interface {
	Next(dst interface{}) error
	// Schema is only reliable after Next has been called.
	Schema() bigquery.Schema
}

type bqJob struct {
	job *bigquery.Job
}

func (j bqJob) ID() string { return j.job.ID() }

func (j bqJob) Status(ctx context.Context) (jobStatus, error) {
	st, err := j.job.Status(ctx)
	if err != nil {
		return jobStatus{}, err
	}
	return jobStatus{State: st.State, Statistics: st.Statistics, Err: st.Err()}, nil
}

func (j bqJob) Read(ctx context.Context) (rowIterator, error) {
	it, err := j.job.Read(ctx)
	if err != nil {
		return nil, err
	}
	return bqRows{it: it}, nil
}

type bqRows struct {
	it *bigquery.RowIterator
}

func (r bqRows) Next(dst interface{}) error { return r.it.Next(dst) }

func (r bqRows) Schema() bigquery.Schema { return r.it.Schema }

// poller blocks on a job until it leaves the pending/running states.
type poller struct {
	initial time.Duration
	max     time.Duration
}

func (p poller) backOff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.initial
	expo.MaxInterval = p.max
	expo.MaxElapsedTime = 0
	expo.Reset()
	return expo
}

// wait polls the job until it is done. Cancelling ctx stops the loop but not
// the job itself.
func (p poller) wait(ctx context.Context, job queryJob, silent bool) (jobStatus, error) {
	attempt := 0
	op := func() (jobStatus, error) {
		attempt++
		status, err := job.Status(ctx)
		if err != nil {
			return jobStatus{}, backoff.Permanent(fmt.Errorf("failed to get status of job %s: %w", job.ID(), err))
		}
		if !silent {
			attrs := []any{
				slog.String("job_id", job.ID()),
				slog.String("state", stateName(status.State)),
				slog.Int("poll", attempt),
			}
			if st := status.Statistics; st != nil {
				attrs = append(attrs,
					slog.Time("created_at", st.CreationTime),
					slog.Time("started_at", st.StartTime),
				)
			}
			slog.InfoContext(ctx, "Polling query job", attrs...)
		}
		if !status.Done() {
			return jobStatus{}, errJobRunning
		}
		if status.Err != nil {
			return jobStatus{}, backoff.Permanent(fmt.Errorf("job %s completed with error: %w", job.ID(), status.Err))
		}
		return status, nil
	}

	return backoff.RetryWithData[jobStatus](op, backoff.WithContext(p.backOff(), ctx))
}

// materialize drains the job's result set into a Table.
func materialize(ctx context.Context, job queryJob) (*Table, error) {
	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read results of job %s: %w", job.ID(), err)
	}
	var rows [][]bigquery.Value
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of job %s: %w", len(rows), job.ID(), err)
		}
		rows = append(rows, values)
	}
	return &Table{Schema: it.Schema(), Rows: rows}, nil
}

func statsOf(jobID string, status jobStatus) JobStats {
	stats := JobStats{JobID: jobID}
	if status.Statistics == nil {
		return stats
	}
	stats.TotalBytesProcessed = status.Statistics.TotalBytesProcessed
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		stats.TotalBytesBilled = qs.TotalBytesBilled
	}
	return stats
}

func logStats(ctx context.Context, stats JobStats) {
	slog.InfoContext(ctx, "Query job done",
		"job_id", stats.JobID,
		"bytes_billed", stats.TotalBytesBilled,
		"bytes_processed", stats.TotalBytesProcessed,
	)
}

func stateName(s bigquery.State) string {
	switch s {
	case bigquery.Pending:
		return "PENDING"
	case bigquery.Running:
		return "RUNNING"
	case bigquery.Done:
		return "DONE"
	default:
		return "UNSPECIFIED"
	}
}
