package dbpool

import (
	"context"
	"database/sql"
	"time"
)

// QueryResult is the row set of one executed statement.
type QueryResult struct {
	Data          []map[string]interface{}
	RowCount      int
	ExecutionTime int64 // milliseconds
}

// QueryRows executes the statement and scans every row into a column-name
// keyed map. Driver []byte values (MySQL returns these for text columns) are
// converted to string so results serialize cleanly to JSON.
func QueryRows(ctx context.Context, db *sql.DB, query string) (*QueryResult, error) {
	start := time.Now()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	data := []map[string]interface{}{}
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}

		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]interface{})
		for i, colName := range cols {
			val := columns[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			rowMap[colName] = val
		}
		data = append(data, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{
		Data:          data,
		RowCount:      len(data),
		ExecutionTime: time.Since(start).Milliseconds(),
	}, nil
}
