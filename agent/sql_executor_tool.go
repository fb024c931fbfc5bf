package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// SQLToolName is the single tool declared to the model.
const SQLToolName = "execute_sql"

// maxToolPayloadBytes clamps tool result payloads before they are fed back to
// the model, so one wide query cannot blow the context window.
const maxToolPayloadBytes = 50000

// SQLResult is what the host-supplied executor returns for one statement.
type SQLResult struct {
	Data          []map[string]interface{} `json:"data"`
	RowCount      int                      `json:"row_count,omitempty"`
	ExecutionTime int64                    `json:"execution_time_ms,omitempty"`
}

// SQLExecutor executes one SQL statement against the database the caller
// bound it to. It returns an error on any execution failure.
type SQLExecutor func(ctx context.Context, sqlText string) (*SQLResult, error)

// sqlToolArgs is the model-issued argument payload for execute_sql,
// validated on receipt before dispatch.
type sqlToolArgs struct {
	SQL     string `json:"sql"`
	Purpose string `json:"purpose"`
}

// toolSuccessPayload is the JSON body returned to the model for a successful
// execution.
type toolSuccessPayload struct {
	Data          []map[string]interface{} `json:"data"`
	RowCount      int                      `json:"row_count"`
	ExecutionTime int64                    `json:"execution_time_ms"`
	Note          string                   `json:"note,omitempty"`
}

// toolFailurePayload is the JSON body returned to the model when execution
// failed after retries, so it can adapt its next SQL.
type toolFailurePayload struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion"`
}

const toolFailureSuggestion = "The query could not be executed. Try a different approach: check table and column names against the schema, simplify the query, or break it into smaller steps."

// ExecuteSQLTool is the execute_sql tool: it validates the model's arguments,
// enforces the read-only allow-list, and runs the statement through the
// retry-and-repair adapter.
type ExecuteSQLTool struct {
	executor   SQLExecutor
	dialect    SQLDialect
	maxRetries int
	maxRows    int
	logger     func(string)
}

// NewExecuteSQLTool creates the tool. maxRetries <= 0 selects
// DefaultMaxRetries; maxRows <= 0 selects DefaultMaxRows.
func NewExecuteSQLTool(executor SQLExecutor, dialect SQLDialect, maxRetries, maxRows int, logger func(string)) *ExecuteSQLTool {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &ExecuteSQLTool{
		executor:   executor,
		dialect:    dialect,
		maxRetries: maxRetries,
		maxRows:    maxRows,
		logger:     logger,
	}
}

// DefaultMaxRows bounds result sets when the model forgets a limiting clause.
const DefaultMaxRows = 1000

func (t *ExecuteSQLTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: SQLToolName,
		Desc: fmt.Sprintf("Execute a read-only SQL query against the connected database and return the rows as JSON. Only SELECT statements (and WITH-prefixed CTEs) are allowed. Results are limited to %d rows. Qualify table names with the default schema and include a row-limiting clause.", t.maxRows),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"sql": {
				Type:     schema.String,
				Desc:     "The SQL SELECT statement to execute.",
				Required: true,
			},
			"purpose": {
				Type:     schema.String,
				Desc:     "One sentence describing what this query is meant to find out.",
				Required: true,
			},
		}),
	}, nil
}

// Execute runs one model-issued tool call and returns both the execution
// record for the plan and the payload string to feed back to the model.
func (t *ExecuteSQLTool) Execute(ctx context.Context, call schema.ToolCall) (QueryExecution, string) {
	var args sqlToolArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		exec := QueryExecution{Error: fmt.Sprintf("invalid execute_sql arguments: %v", err)}
		return exec, marshalToolPayload(toolFailurePayload{Error: exec.Error, Suggestion: toolFailureSuggestion})
	}
	if strings.TrimSpace(args.SQL) == "" {
		exec := QueryExecution{Purpose: args.Purpose, Error: "execute_sql called with an empty sql argument"}
		return exec, marshalToolPayload(toolFailurePayload{Error: exec.Error, Suggestion: toolFailureSuggestion})
	}

	if err := ValidateReadOnly(args.SQL); err != nil {
		exec := QueryExecution{SQL: args.SQL, Purpose: args.Purpose, Error: err.Error()}
		return exec, marshalToolPayload(toolFailurePayload{Error: exec.Error, Suggestion: "Only SELECT statements are allowed. Rewrite the query as a SELECT."})
	}

	sqlText := t.dialect.EnsureRowLimit(args.SQL, t.maxRows)

	exec := ExecuteSQLWithRetry(ctx, sqlText, args.Purpose, t.executor, t.dialect, t.maxRetries, t.logger)
	if !exec.Succeeded() {
		return exec, marshalToolPayload(toolFailurePayload{Error: exec.Error, Suggestion: toolFailureSuggestion})
	}

	payload := toolSuccessPayload{
		Data:          exec.Result,
		RowCount:      exec.RowCount,
		ExecutionTime: exec.ExecutionTime,
	}
	body := marshalToolPayload(payload)
	if len(body) > maxToolPayloadBytes {
		payload.Data = exec.Result[:previewRows(len(exec.Result))]
		payload.Note = fmt.Sprintf("Result truncated: %d rows total, showing the first %d. Narrow the query with WHERE or aggregate if you need more.", exec.RowCount, len(payload.Data))
		body = marshalToolPayload(payload)
	}
	return exec, body
}

// InvokableRun implements the eino tool contract so the same tool can be
// placed in a standard eino graph.
func (t *ExecuteSQLTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	_, payload := t.Execute(ctx, schema.ToolCall{
		Function: schema.FunctionCall{Name: SQLToolName, Arguments: argumentsInJSON},
	})
	return payload, nil
}

func marshalToolPayload(v interface{}) string {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(body)
}

func previewRows(n int) int {
	if n > 25 {
		return 25
	}
	return n
}

var (
	lineCommentRegex  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRegex = regexp.MustCompile(`/\*[\s\S]*?\*/`)
)

// ValidateReadOnly rejects anything that is not a SELECT or WITH-prefixed
// statement. Comments are stripped before checking so a leading comment
// cannot hide a mutation.
func ValidateReadOnly(sqlText string) error {
	clean := lineCommentRegex.ReplaceAllString(sqlText, "")
	clean = blockCommentRegex.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return fmt.Errorf("empty SQL statement")
	}

	upper := strings.ToUpper(clean)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT queries are allowed for safety; received: %s", firstLine(sqlText))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
