package service

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// normalizeValue converts a BigQuery value into plain Go values that encode
// losslessly as JSON or text. NUMERIC and BIGNUMERIC become decimal strings at
// their full scale, civil types use BigQuery's literal format and RECORD
// values become maps keyed by field name. f may be nil when the column schema
// is unknown.
func normalizeValue(v bigquery.Value, f *bigquery.FieldSchema) any {
	if f != nil && f.Repeated {
		if arr, ok := v.([]bigquery.Value); ok {
			elem := *f
			elem.Repeated = false
			out := make([]any, len(arr))
			for i, x := range arr {
				out[i] = normalizeValue(x, &elem)
			}
			return out
		}
	}

	switch x := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		if x == nil {
			return nil
		}
		return ratString(x, f)
	case time.Time:
		return x.UTC()
	case civil.Date:
		return x.String()
	case civil.Time:
		return bigquery.CivilTimeString(x)
	case civil.DateTime:
		return bigquery.CivilDateTimeString(x)
	case []bigquery.Value:
		if f != nil && len(f.Schema) > 0 {
			rec := make(map[string]any, len(f.Schema))
			for i, sub := range f.Schema {
				if i < len(x) {
					rec[sub.Name] = normalizeValue(x[i], sub)
				} else {
					rec[sub.Name] = nil
				}
			}
			return rec
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e, nil)
		}
		return out
	case map[string]bigquery.Value:
		var fields map[string]*bigquery.FieldSchema
		if f != nil {
			fields = make(map[string]*bigquery.FieldSchema, len(f.Schema))
			for _, sub := range f.Schema {
				fields[sub.Name] = sub
			}
		}
		rec := make(map[string]any, len(x))
		for k, e := range x {
			rec[k] = normalizeValue(e, fields[k])
		}
		return rec
	default:
		return x
	}
}

// ratString renders a NUMERIC at scale 9 and anything else, including values
// of unknown type, at the BIGNUMERIC scale of 38.
func ratString(r *big.Rat, f *bigquery.FieldSchema) string {
	if f != nil && f.Type == bigquery.NumericFieldType {
		return bigquery.NumericString(r)
	}
	return bigquery.BigNumericString(r)
}
