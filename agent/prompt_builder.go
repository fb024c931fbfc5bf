package agent

import (
	"fmt"
	"strings"

	einoSchema "github.com/cloudwego/eino/schema"
)

// maxHistoryTurns caps how many prior exchanges are embedded into the prompt.
const maxHistoryTurns = 3

// PromptBuilder turns retrieved schema context, the SQL dialect, and bounded
// conversation history into the system instruction and message list for the
// agent loop.
type PromptBuilder struct {
	dialect SQLDialect
	maxRows int
}

// NewPromptBuilder creates a builder for the given dialect. maxRows is the
// row cap the model is told to enforce in its own queries.
func NewPromptBuilder(dialect SQLDialect, maxRows int) *PromptBuilder {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &PromptBuilder{dialect: dialect, maxRows: maxRows}
}

// SystemInstruction builds the system prompt: the candidate schemas verbatim,
// the SQL authoring rules, and the chart selection table.
func (b *PromptBuilder) SystemInstruction(schemas []RankedSchema) string {
	var sb strings.Builder

	sb.WriteString("You are a senior data analyst answering questions about a relational database. ")
	sb.WriteString("You answer by writing SQL, executing it with the execute_sql tool, and summarizing the results in markdown.\n\n")

	sb.WriteString(fmt.Sprintf("## Database\nType: %s\nDefault schema: %s\n\n", strings.ToUpper(b.dialect.DatabaseType), b.dialect.DefaultSchema()))

	sb.WriteString("## Available Schema\n")
	sb.WriteString("These are the tables most relevant to the question, ranked by similarity:\n\n")
	for i, s := range schemas {
		sb.WriteString(fmt.Sprintf("### Candidate %d (similarity %.2f)\n", i+1, s.Similarity))
		sb.WriteString(s.Schema)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## SQL Rules (strict)\n")
	sb.WriteString("1. SELECT statements only. Never write INSERT, UPDATE, DELETE, or DDL.\n")
	sb.WriteString(fmt.Sprintf("2. Always schema-qualify table names with the default schema, e.g. %s.orders.\n", b.dialect.DefaultSchema()))
	sb.WriteString(fmt.Sprintf("3. Always include a row-limiting clause: %s (max %d rows).\n", b.dialect.LimitSyntax(), b.maxRows))
	sb.WriteString("4. Only use tables and columns that appear in the schema above. No hallucination.\n")
	sb.WriteString(b.dialect.Hints())
	sb.WriteString("\n\n")

	sb.WriteString("## Chart Selection\n")
	sb.WriteString("After your analysis, decide whether a chart helps and pick its type:\n")
	sb.WriteString("- Proportions or shares of a whole (\"percentage\", \"share of\", \"breakdown\") -> pie\n")
	sb.WriteString("- Comparing or ranking absolute magnitudes (\"top\", \"most\", \"compare\") -> bar\n")
	sb.WriteString("- Values over time (\"trend\", \"per month\", \"growth\") -> line\n")
	sb.WriteString("- Single values, non-numeric results, or insufficient data -> none\n\n")

	sb.WriteString("## Response Format\n")
	sb.WriteString("Answer in markdown. When a chart applies, append exactly one fenced block tagged chartdata containing JSON:\n")
	sb.WriteString("```chartdata\n")
	sb.WriteString(`{"type": "bar", "data": [{"category": "A", "value": 10}], "xAxisKey": "category", "yAxisKey": "value", "description": "..."}`)
	sb.WriteString("\n```\n")
	sb.WriteString(fmt.Sprintf("Keep data to at most %d points. Use {\"type\": \"none\", \"data\": []} when no chart applies.\n", MaxChartPoints))

	return sb.String()
}

// BuildMessages converts the capped conversation history into alternating
// user/assistant turns and appends the current question as the final user
// turn. The system instruction is not included; the loop prepends it.
func (b *PromptBuilder) BuildMessages(history []ConversationContext, question string) []*einoSchema.Message {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	messages := make([]*einoSchema.Message, 0, len(history)*2+1)
	for _, turn := range history {
		messages = append(messages, &einoSchema.Message{
			Role:    einoSchema.User,
			Content: turn.Question,
		})
		messages = append(messages, &einoSchema.Message{
			Role:    einoSchema.Assistant,
			Content: formatHistoryAnswer(turn),
		})
	}

	messages = append(messages, &einoSchema.Message{
		Role:    einoSchema.User,
		Content: question,
	})
	return messages
}

// formatHistoryAnswer compacts one prior answer for the prompt: the answer
// text plus the SQL and key findings when present, so follow-up questions can
// reference them.
func formatHistoryAnswer(turn ConversationContext) string {
	var sb strings.Builder
	sb.WriteString(turn.Answer)
	if turn.SQLQuery != "" {
		sb.WriteString("\n\nSQL used:\n```sql\n")
		sb.WriteString(turn.SQLQuery)
		sb.WriteString("\n```")
	}
	if len(turn.KeyFindings) > 0 {
		sb.WriteString("\n\nKey findings:\n")
		for _, f := range turn.KeyFindings {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
