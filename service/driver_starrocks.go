package service

import (
	"context"
)

type StarRocksDriver struct {
	sr *StarRocksService
}

func NewStarRocksDriver(sr *StarRocksService) *StarRocksDriver {
	return &StarRocksDriver{sr: sr}
}

func (d *StarRocksDriver) Execute(ctx context.Context, wh Warehouse, params ExportParams) (ExportResult, error) {
	table := params.Table
	if table == "" {
		table = "export"
	}
	result, err := wh.Query(ctx, QueryParams{
		SQL:        params.Query,
		Location:   params.QueryLocation,
		Parameters: params.Parameters,
		Silent:     params.Silent,
	})
	if err != nil {
		return ExportResult{}, err
	}
	rows, err := d.sr.LoadTable(ctx, result, table, params.CreateDDL)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Table: table, Rows: rows}, nil
}
