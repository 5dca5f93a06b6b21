package api

import (
	"context"
	"log/slog"
	"net/http"

	"bq-operator/service"

	"github.com/gin-gonic/gin"
)

// Querier runs a query and returns its materialized result.
type Querier interface {
	Query(ctx context.Context, qp service.QueryParams) (*service.Table, error)
}

// Executor runs statements for their side effects.
type Executor interface {
	Exec(ctx context.Context, sql, location string, silent bool) (service.JobStats, error)
}

// RowInserter streams single rows into a table.
type RowInserter interface {
	InsertRow(ctx context.Context, tableID string, row map[string]any) error
}

type QueryRequest struct {
	Query         string         `json:"query" binding:"required"`
	Parameters    map[string]any `json:"parameters"`
	QueryLocation string         `json:"query_location"`
	Silent        bool           `json:"silent"`
}

type QueryResponse struct {
	Columns        []string         `json:"columns"`
	Rows           []map[string]any `json:"rows"`
	JobID          string           `json:"job_id"`
	BytesProcessed int64            `json:"bytes_processed"`
	BytesBilled    int64            `json:"bytes_billed"`
}

func QueryHandler(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		table, err := q.Query(c.Request.Context(), service.QueryParams{
			SQL:        req.Query,
			Location:   req.QueryLocation,
			Parameters: req.Parameters,
			Silent:     req.Silent,
		})
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Query failed", "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, QueryResponse{
			Columns:        table.Columns(),
			Rows:           table.Records(),
			JobID:          table.Stats.JobID,
			BytesProcessed: table.Stats.TotalBytesProcessed,
			BytesBilled:    table.Stats.TotalBytesBilled,
		})
	}
}

type ExecRequest struct {
	Query         string `json:"query" binding:"required"`
	QueryLocation string `json:"query_location"`
	Silent        bool   `json:"silent"`
}

func ExecHandler(ex Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExecRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stats, err := ex.Exec(c.Request.Context(), req.Query, req.QueryLocation, req.Silent)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Statement failed", "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":         "OK",
			"job_id":          stats.JobID,
			"bytes_processed": stats.TotalBytesProcessed,
			"bytes_billed":    stats.TotalBytesBilled,
		})
	}
}

type StreamRequest struct {
	TableID string         `json:"table_id" binding:"required"`
	Row     map[string]any `json:"row" binding:"required"`
}

func StreamHandler(ins RowInserter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StreamRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := ins.InsertRow(c.Request.Context(), req.TableID, req.Row); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
	}
}
