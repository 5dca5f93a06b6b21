package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"bq-operator/service"

	"github.com/gin-gonic/gin"
)

type ExportRequest struct {
	Query         string         `json:"query" binding:"required"`
	Parameters    map[string]any `json:"parameters"`
	Output        string         `json:"output" binding:"required"`
	Filename      string         `json:"filename"`
	QueryLocation string         `json:"query_location"`
	UseTimestamp  bool           `json:"use_timestamp"`
	Format        string         `json:"format"`
	Table         string         `json:"table"`
	CreateDDL     string         `json:"create_ddl"`
	Options       OutputOptions  `json:"options"`
}

// OutputOptions mirrors service.WriteOptions in JSON form.
type OutputOptions struct {
	Delimiter   string `json:"delimiter"`
	NoHeader    bool   `json:"no_header"`
	NullValue   string `json:"null_value"`
	Compression string `json:"compression"`
}

func (o OutputOptions) writeOptions() (service.WriteOptions, error) {
	opts := service.WriteOptions{
		NoHeader:    o.NoHeader,
		NullValue:   o.NullValue,
		Compression: o.Compression,
	}
	if o.Delimiter != "" {
		if utf8.RuneCountInString(o.Delimiter) != 1 {
			return opts, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
		}
		opts.Delimiter, _ = utf8.DecodeRuneInString(o.Delimiter)
	}
	return opts, nil
}

type ExportResponse struct {
	Message string `json:"message"`
	GCSPath string `json:"gcs_path,omitempty"`
	Path    string `json:"path,omitempty"`
	Table   string `json:"starrocks_table,omitempty"`
	Rows    int64  `json:"rows_loaded,omitempty"`
}

func ExportHandler(wh service.Warehouse, driver service.ExportDriver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts, err := req.Options.writeOptions()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slog.InfoContext(c.Request.Context(), "Received export request",
			"query", req.Query,
			"output", req.Output,
			"format", req.Format,
			"filename", req.Filename,
			"location", req.QueryLocation,
			"use_timestamp", req.UseTimestamp,
		)

		params := service.ExportParams{
			Query:         req.Query,
			Parameters:    req.Parameters,
			Output:        req.Output,
			Filename:      req.Filename,
			QueryLocation: req.QueryLocation,
			UseTimestamp:  req.UseTimestamp,
			Format:        req.Format,
			Options:       opts,
			Table:         req.Table,
			CreateDDL:     req.CreateDDL,
		}
		res, err := driver.Execute(c.Request.Context(), wh, params)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Export failed", "error", err)
			c.JSON(statusFor(err), gin.H{"error": "Failed to process export: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, ExportResponse{
			Message: "OK",
			GCSPath: res.GCSPath,
			Path:    res.Path,
			Table:   res.Table,
			Rows:    res.Rows,
		})
	}
}

// statusFor maps caller mistakes to 400 and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSQLNotSet),
		errors.Is(err, service.ErrUnsupportedFormat),
		errors.Is(err, service.ErrUnsupportedLocation),
		errors.Is(err, service.ErrOutputNotAllowed),
		errors.Is(err, service.ErrInvalidTableID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
