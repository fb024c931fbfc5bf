package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoSchema "github.com/cloudwego/eino/schema"
)

// fallbackPreviewRows is how many rows of each successful query the
// deterministic fallback renders.
const fallbackPreviewRows = 5

// AnswerSynthesizer produces an answer when the agent loop exits without
// model-provided text (iteration cap hit with tool calls still pending).
type AnswerSynthesizer struct {
	chatModel model.ChatModel
	logger    func(string)
}

// NewAnswerSynthesizer creates a synthesizer backed by the given model.
func NewAnswerSynthesizer(chatModel model.ChatModel, logger func(string)) *AnswerSynthesizer {
	return &AnswerSynthesizer{chatModel: chatModel, logger: logger}
}

// Synthesize asks the model for a final answer given the executed queries and
// their results, under the same markdown + chartdata contract as a normal
// turn. If the secondary call fails, it falls back to the deterministic
// markdown rendering. The returned string is never empty when at least one
// query succeeded.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question string, queries []QueryExecution) string {
	succeeded := false
	for i := range queries {
		if queries[i].Succeeded() {
			succeeded = true
			break
		}
	}
	if !succeeded {
		return RenderFallbackMarkdown(question, queries)
	}

	if s.chatModel != nil {
		answer, err := s.synthesizeWithModel(ctx, question, queries)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if err != nil && s.logger != nil {
			s.logger(fmt.Sprintf("[FALLBACK] synthesis call failed, using deterministic rendering: %v", err))
		}
	}

	return RenderFallbackMarkdown(question, queries)
}

func (s *AnswerSynthesizer) synthesizeWithModel(ctx context.Context, question string, queries []QueryExecution) (string, error) {
	var sb strings.Builder
	sb.WriteString("The following SQL queries were already executed to answer the user's question. ")
	sb.WriteString("Write the final answer now.\n\n")
	sb.WriteString(fmt.Sprintf("## Question\n%s\n\n## Executed Queries\n", question))

	for i, q := range queries {
		sb.WriteString(fmt.Sprintf("### Query %d\nPurpose: %s\n```sql\n%s\n```\n", i+1, q.Purpose, q.SQL))
		if q.Succeeded() {
			preview := q.Result
			if len(preview) > MaxChartPoints {
				preview = preview[:MaxChartPoints]
			}
			rows, _ := json.Marshal(preview)
			sb.WriteString(fmt.Sprintf("Rows (%d total): %s\n\n", q.RowCount, string(rows)))
		} else {
			sb.WriteString(fmt.Sprintf("Failed: %s\n\n", q.Error))
		}
	}

	sb.WriteString("## Instructions\n")
	sb.WriteString("Answer in markdown using only the data above. ")
	sb.WriteString("If a chart helps, append exactly one fenced chartdata block (type bar, pie, line, or none; at most 20 data points).\n")

	msgs := []*einoSchema.Message{
		{Role: einoSchema.System, Content: "You are a data analyst summarizing SQL query results into a clear markdown answer."},
		{Role: einoSchema.User, Content: sb.String()},
	}

	resp, err := s.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// RenderFallbackMarkdown is the fully deterministic rendering: a summary
// line, then for each successful query a heading, the SQL, and the first
// rows as a markdown table. It never produces chart data.
func RenderFallbackMarkdown(question string, queries []QueryExecution) string {
	var sb strings.Builder

	successes := 0
	for i := range queries {
		if queries[i].Succeeded() {
			successes++
		}
	}

	sb.WriteString(fmt.Sprintf("## Analysis Results\n\nRan %d quer%s for: %s\n\n",
		len(queries), pluralIES(len(queries)), question))

	if successes == 0 {
		sb.WriteString("None of the queries completed successfully. Try rephrasing the question or checking the database connection.\n")
		return sb.String()
	}

	n := 0
	for i := range queries {
		q := &queries[i]
		if !q.Succeeded() {
			continue
		}
		n++
		title := q.Purpose
		if title == "" {
			title = fmt.Sprintf("Query %d", n)
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n```sql\n%s\n```\n\n", title, q.SQL))
		sb.WriteString(renderMarkdownTable(q.Result, fallbackPreviewRows))
		if q.RowCount > fallbackPreviewRows {
			sb.WriteString(fmt.Sprintf("\n_Showing %d of %d rows._\n", fallbackPreviewRows, q.RowCount))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderMarkdownTable renders up to maxRows rows with a stable column order
// (alphabetical, since result maps are unordered).
func renderMarkdownTable(rows []map[string]interface{}, maxRows int) string {
	if len(rows) == 0 {
		return "_No rows returned._\n"
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")

	limit := len(rows)
	if limit > maxRows {
		limit = maxRows
	}
	for _, row := range rows[:limit] {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row[col])
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

func formatCell(v interface{}) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func pluralIES(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
