// Package shaper implements Component E: reducing a raw rowset, plus the
// {returns_set, returns_json, column_count} shape the catalog reported for
// the procedure that produced it, down to a single JSON value.
package shaper

import (
	"encoding/json"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/invoker"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

// Shape reduces an invocation result to the JSON value the client
// receives, following spec §4.E:
//
//   - returns_json: the procedure already returns a single json/jsonb
//     value. Exactly one row, one column is required; the column's raw
//     text is parsed and returned as-is (it is already a JSON document).
//   - returns_set = false: at most one row is expected. Zero rows yields
//     JSON null. More than one row is a server-side contract violation
//     (InternalError). One row with one column yields that column's
//     scalar value; one row with multiple columns yields a JSON object
//     keyed by column name.
//   - returns_set = true: any number of rows is expected. A single
//     column yields a flat JSON array of that column's values; multiple
//     columns yield an array of row objects keyed by column name. Zero
//     declared columns is a server-side contract violation.
func Shape(result *invoker.Result) (interface{}, error) {
	rs := result.Rowset
	columnCount := len(rs.Columns)

	if result.ReturnsJSON {
		return shapeJSON(rs)
	}

	if !result.ReturnsSet {
		switch len(rs.Rows) {
		case 0:
			return nil, nil
		case 1:
			return rowValue(rs.Columns, rs.Rows[0]), nil
		default:
			return nil, rpcerrors.Internal("procedure declared as not returning a set produced more than one row", nil)
		}
	}

	if columnCount == 0 {
		return nil, rpcerrors.Internal("procedure declared as returning a set produced zero columns", nil)
	}

	values := make([]interface{}, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		values = append(values, rowValue(rs.Columns, row))
	}
	return values, nil
}

// rowValue collapses a single row to a scalar (one column) or an object
// keyed by column name (more than one column).
func rowValue(columns []string, row []interface{}) interface{} {
	if len(columns) == 1 {
		return row[0]
	}
	obj := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		obj[col] = row[i]
	}
	return obj
}

func shapeJSON(rs *dbfacade.Rowset) (interface{}, error) {
	if len(rs.Rows) != 1 || len(rs.Columns) != 1 {
		return nil, rpcerrors.Internal("procedure declared as returning json must produce exactly one row and one column", nil)
	}

	raw := rs.Rows[0][0]
	if raw == nil {
		return nil, nil
	}

	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return nil, rpcerrors.Internal("procedure declared as returning json produced a non-text column value", nil)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, rpcerrors.Internal("procedure declared as returning json produced invalid JSON", err)
	}
	return parsed, nil
}
