package agent

// ConversationContext is an immutable record of one prior question/answer
// exchange, supplied by the caller. Only the most recent few entries are
// embedded into the prompt (see maxHistoryTurns in prompt_builder.go).
type ConversationContext struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	SQLQuery    string   `json:"sql_query,omitempty"`
	KeyFindings []string `json:"key_findings,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
}

// QueryExecution records one execute_sql tool call: the SQL, the model's
// stated purpose, and the outcome. Exactly one of Result/Error is set once
// execution finishes.
type QueryExecution struct {
	SQL           string                   `json:"sql"`
	Purpose       string                   `json:"purpose"`
	Result        []map[string]interface{} `json:"result,omitempty"`
	Error         string                   `json:"error,omitempty"`
	ExecutionTime int64                    `json:"execution_time_ms,omitempty"`
	RowCount      int                      `json:"row_count,omitempty"`
}

// Succeeded reports whether the execution produced a result.
func (q *QueryExecution) Succeeded() bool {
	return q.Error == ""
}

// ChartType identifies the visualization kind the model (or the deterministic
// fallback heuristic) selected for the answer.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
	ChartLine ChartType = "line"
	ChartNone ChartType = "none"
)

// MaxChartPoints caps the number of data points in a ChartSpec. The prompt
// instructs the model to stay under this; the extractor clamps regardless.
const MaxChartPoints = 20

// ChartSpec is a structured visualization hint extracted from the model's
// final answer text.
type ChartSpec struct {
	Type        ChartType                `json:"type"`
	Data        []map[string]interface{} `json:"data"`
	XAxisKey    string                   `json:"xAxisKey,omitempty"`
	YAxisKey    string                   `json:"yAxisKey,omitempty"`
	Description string                   `json:"description,omitempty"`
}

// QueryPlan is the per-invocation record of a question, the queries executed
// to answer it, and the final answer. It is created at the start of one
// AnswerQuestion call, mutated only by the agent loop during that call, and
// returned to the caller on completion. Persistence is the caller's concern.
type QueryPlan struct {
	ID                 string           `json:"id"`
	Question           string           `json:"question"`
	FinalAnswer        string           `json:"final_answer"`
	FinalSQL           string           `json:"final_sql,omitempty"`
	ChartData          *ChartSpec       `json:"chart_data,omitempty"`
	DatabaseType       string           `json:"database_type"`
	TotalExecutionTime int64            `json:"total_execution_time_ms"`
	QueryCount         int              `json:"query_count"`
	Queries            []QueryExecution `json:"queries"`
}

// appendQueries appends a resolved batch to the plan, keeping QueryCount,
// FinalSQL and TotalExecutionTime consistent with Queries.
func (p *QueryPlan) appendQueries(execs ...QueryExecution) {
	p.Queries = append(p.Queries, execs...)
	p.QueryCount = len(p.Queries)
	p.FinalSQL = p.Queries[len(p.Queries)-1].SQL
	for _, e := range execs {
		p.TotalExecutionTime += e.ExecutionTime
	}
}

// QuestionResponse is what the orchestrator hands back to the caller: the
// final markdown answer (chartdata block already stripped) and the plan.
type QuestionResponse struct {
	Answer string     `json:"answer"`
	Plan   *QueryPlan `json:"plan"`
}
