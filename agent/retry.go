package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxRetries is the number of re-attempts after the first execution
// failure, so a statement runs at most DefaultMaxRetries+1 times.
const DefaultMaxRetries = 2

// RepairRule classifies one error condition and rewrites the SQL to repair
// it. Rules are consulted in order; the first match wins.
type RepairRule interface {
	Matches(errMsg string) bool
	Repair(sqlText string, dialect SQLDialect) string
}

// missingTableRule handles the "table not found" class of errors by
// prefixing the first unqualified FROM target with the dialect's default
// schema. The most common cause is the model omitting the schema prefix.
type missingTableRule struct{}

func (missingTableRule) Matches(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	missing := strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "doesn't exist")
	subject := strings.Contains(lower, "table") || strings.Contains(lower, "relation")
	return missing && subject
}

var fromTableRegex = regexp.MustCompile("(?i)(\\bFROM\\s+)([`\"\\[]?[a-zA-Z_][a-zA-Z0-9_]*[`\"\\]]?)")

func (missingTableRule) Repair(sqlText string, dialect SQLDialect) string {
	schemaName := dialect.DefaultSchema()
	if schemaName == "" {
		return sqlText
	}

	loc := fromTableRegex.FindStringSubmatchIndex(sqlText)
	if loc == nil {
		return sqlText
	}
	// Already schema-qualified if the identifier is followed by a dot.
	if loc[5] < len(sqlText) && sqlText[loc[5]] == '.' {
		return sqlText
	}
	return sqlText[:loc[4]] + schemaName + "." + sqlText[loc[4]:]
}

// defaultRepairRules is the registry the adapter consults. Additional
// per-dialect rules slot in here.
var defaultRepairRules = []RepairRule{
	missingTableRule{},
}

// ExecuteSQLWithRetry runs one statement with bounded retry-and-repair.
// Attempt 0..maxRetries: on failure the error is classified against the
// repair registry; a matching rule rewrites the SQL for the next attempt,
// any other error retries the same SQL (transient-failure allowance). After
// exhausting retries the returned QueryExecution carries the last error and
// no result.
func ExecuteSQLWithRetry(ctx context.Context, sqlText, purpose string, executor SQLExecutor, dialect SQLDialect, maxRetries int, logger func(string)) QueryExecution {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	currentSQL := sqlText
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		start := time.Now()
		result, err := executor(ctx, currentSQL)
		if err == nil {
			exec := QueryExecution{
				SQL:           currentSQL,
				Purpose:       purpose,
				Result:        result.Data,
				ExecutionTime: result.ExecutionTime,
				RowCount:      result.RowCount,
			}
			if exec.ExecutionTime == 0 {
				exec.ExecutionTime = time.Since(start).Milliseconds()
			}
			if exec.RowCount == 0 {
				exec.RowCount = len(result.Data)
			}
			if exec.Result == nil {
				exec.Result = []map[string]interface{}{}
			}
			return exec
		}

		lastErr = err
		if logger != nil {
			logger(fmt.Sprintf("[SQL-RETRY] attempt %d/%d failed: %v", attempt+1, maxRetries+1, err))
		}

		for _, rule := range defaultRepairRules {
			if rule.Matches(err.Error()) {
				repaired := rule.Repair(currentSQL, dialect)
				if repaired != currentSQL {
					if logger != nil {
						logger(fmt.Sprintf("[SQL-RETRY] repaired SQL: %s", firstLine(repaired)))
					}
					currentSQL = repaired
				}
				break
			}
		}
	}

	return QueryExecution{
		SQL:     currentSQL,
		Purpose: purpose,
		Error:   fmt.Sprintf("query failed after %d attempts: %v", maxRetries+1, lastErr),
	}
}
