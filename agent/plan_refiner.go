package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoSchema "github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// refineEveryNSteps is how often the runner asks the model to revise the
// remaining plan under normal conditions. Surprising results (zero rows, or
// a result hitting the row cap) trigger an immediate refinement instead.
const refineEveryNSteps = 2

// PlanStep is one unit of a pre-generated step plan. Steps form a dependency
// graph via DependsOn; a step becomes eligible only once every dependency has
// executed. Removed steps are skipped and their IDs are stripped from all
// remaining DependsOn lists.
type PlanStep struct {
	ID        string   `json:"id"`
	Purpose   string   `json:"purpose"`
	SQL       string   `json:"sql"`
	DependsOn []string `json:"dependsOn,omitempty"`
	Removed   bool     `json:"removed,omitempty"`
}

// PlanRunner is the single-shot planning alternative to the tool-calling
// loop: the model emits the whole step plan up front, a scheduler walks the
// dependency graph, and periodic refinement calls let the model revise the
// not-yet-executed tail based on intermediate results.
type PlanRunner struct {
	chatModel  model.ChatModel
	dialect    SQLDialect
	maxRetries int
	maxRows    int
	logger     func(string)
}

// NewPlanRunner creates a runner. Zero maxRetries/maxRows select defaults.
func NewPlanRunner(chatModel model.ChatModel, dialect SQLDialect, maxRetries, maxRows int, logger func(string)) *PlanRunner {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &PlanRunner{
		chatModel:  chatModel,
		dialect:    dialect,
		maxRetries: maxRetries,
		maxRows:    maxRows,
		logger:     logger,
	}
}

// Run generates the step plan, executes it to completion, and synthesizes
// the final answer from the executed queries. Like the agent loop, runtime
// failures surface inside the plan rather than as returned errors; the error
// is non-nil only when no plan could be generated at all.
func (r *PlanRunner) Run(ctx context.Context, question string, schemas []RankedSchema, executor SQLExecutor) (*QueryPlan, error) {
	steps, err := r.generatePlan(ctx, question, schemas)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	plan := &QueryPlan{
		ID:           uuid.NewString(),
		Question:     question,
		DatabaseType: r.dialect.DatabaseType,
		Queries:      []QueryExecution{},
	}

	executed := make(map[string]bool)
	sinceRefine := 0

	for {
		idx := nextEligibleStep(steps, executed)
		if idx < 0 {
			break
		}
		step := &steps[idx]

		r.log(fmt.Sprintf("[PLAN] executing step %s: %s", step.ID, step.Purpose))
		validated := step.SQL
		if vErr := ValidateReadOnly(validated); vErr != nil {
			plan.appendQueries(QueryExecution{SQL: step.SQL, Purpose: step.Purpose, Error: vErr.Error()})
			executed[step.ID] = true
			continue
		}
		validated = r.dialect.EnsureRowLimit(validated, r.maxRows)

		exec := ExecuteSQLWithRetry(ctx, validated, step.Purpose, executor, r.dialect, r.maxRetries, r.logger)
		plan.appendQueries(exec)
		executed[step.ID] = true
		sinceRefine++

		surprising := exec.Succeeded() && (exec.RowCount == 0 || exec.RowCount >= r.maxRows)
		if surprising || sinceRefine >= refineEveryNSteps {
			sinceRefine = 0
			if remaining := countPending(steps, executed); remaining > 0 {
				steps = r.refine(ctx, question, steps, executed, plan.Queries)
			}
		}
	}

	plan.FinalAnswer = NewAnswerSynthesizer(r.chatModel, r.logger).Synthesize(ctx, question, plan.Queries)
	chart, cleaned := ExtractChartData(plan.FinalAnswer)
	plan.ChartData = chart
	plan.FinalAnswer = cleaned
	return plan, nil
}

// nextEligibleStep returns the first step that is not removed, not executed,
// and whose dependencies have all executed. Plan order breaks ties.
func nextEligibleStep(steps []PlanStep, executed map[string]bool) int {
	for i := range steps {
		s := &steps[i]
		if s.Removed || executed[s.ID] {
			continue
		}
		ready := true
		for _, dep := range s.DependsOn {
			if !executed[dep] {
				ready = false
				break
			}
		}
		if ready {
			return i
		}
	}
	return -1
}

func countPending(steps []PlanStep, executed map[string]bool) int {
	n := 0
	for i := range steps {
		if !steps[i].Removed && !executed[steps[i].ID] {
			n++
		}
	}
	return n
}

// removeStep marks the step removed and strips its ID from every other
// step's dependency list, so no pending step waits on it forever.
func removeStep(steps []PlanStep, id string) {
	for i := range steps {
		if steps[i].ID == id {
			steps[i].Removed = true
		}
		deps := steps[i].DependsOn[:0]
		for _, dep := range steps[i].DependsOn {
			if dep != id {
				deps = append(deps, dep)
			}
		}
		steps[i].DependsOn = deps
	}
}

// applyRefinement merges the model's revised steps into the plan. Executed
// steps are immutable; pending steps matched by ID are updated in place;
// unknown IDs append as new steps. A revision marked removed triggers
// removeStep. Pending steps absent from the revision are kept unchanged.
func applyRefinement(steps []PlanStep, executed map[string]bool, revised []PlanStep) []PlanStep {
	for _, rev := range revised {
		if rev.ID == "" || executed[rev.ID] {
			continue
		}
		found := false
		for i := range steps {
			if steps[i].ID != rev.ID {
				continue
			}
			found = true
			if rev.Removed {
				removeStep(steps, rev.ID)
				break
			}
			if rev.SQL != "" {
				steps[i].SQL = rev.SQL
			}
			if rev.Purpose != "" {
				steps[i].Purpose = rev.Purpose
			}
			if rev.DependsOn != nil {
				steps[i].DependsOn = rev.DependsOn
			}
			break
		}
		if !found && !rev.Removed {
			steps = append(steps, rev)
		}
	}
	return steps
}

// jsonPayloadRegex pulls the JSON object out of a model reply, tolerating an
// optional fenced code block around it.
var jsonPayloadRegex = regexp.MustCompile("(?s)\\{.*\\}")

type stepPlanPayload struct {
	Steps []PlanStep `json:"steps"`
}

func (r *PlanRunner) generatePlan(ctx context.Context, question string, schemas []RankedSchema) ([]PlanStep, error) {
	var sb strings.Builder
	sb.WriteString("Plan the SQL queries needed to answer the question below. ")
	sb.WriteString("Reply with JSON only: {\"steps\": [{\"id\": \"s1\", \"purpose\": \"...\", \"sql\": \"...\", \"dependsOn\": []}]}. ")
	sb.WriteString("Use dependsOn to order steps that need earlier results.\n\n")
	sb.WriteString(fmt.Sprintf("Database type: %s, default schema: %s.\n", r.dialect.DatabaseType, r.dialect.DefaultSchema()))
	sb.WriteString(fmt.Sprintf("Every statement must be a SELECT with a row limit: %s (max %d rows).\n\n", r.dialect.LimitSyntax(), r.maxRows))
	sb.WriteString("## Schema\n")
	for _, s := range schemas {
		sb.WriteString(s.Schema)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Question\n")
	sb.WriteString(question)

	resp, err := r.chatModel.Generate(ctx, []*einoSchema.Message{
		{Role: einoSchema.System, Content: "You are a SQL query planner. Reply with the requested JSON and nothing else."},
		{Role: einoSchema.User, Content: sb.String()},
	})
	if err != nil {
		return nil, err
	}

	steps, err := parseStepPlan(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("model returned an empty step plan")
	}
	return steps, nil
}

// refine asks the model to revise the pending steps given results so far.
// Refinement is best-effort: any failure leaves the plan unchanged.
func (r *PlanRunner) refine(ctx context.Context, question string, steps []PlanStep, executed map[string]bool, results []QueryExecution) []PlanStep {
	var sb strings.Builder
	sb.WriteString("You are revising an in-flight SQL query plan. ")
	sb.WriteString("Reply with JSON only: {\"steps\": [...]} listing ONLY the pending steps you want to change, add, or remove ")
	sb.WriteString("(set \"removed\": true to drop one). Executed steps cannot change.\n\n")
	sb.WriteString(fmt.Sprintf("## Question\n%s\n\n## Results so far\n", question))
	for i := range results {
		q := &results[i]
		if q.Succeeded() {
			sb.WriteString(fmt.Sprintf("- %s: %d rows\n", q.Purpose, q.RowCount))
		} else {
			sb.WriteString(fmt.Sprintf("- %s: failed (%s)\n", q.Purpose, firstLine(q.Error)))
		}
	}
	sb.WriteString("\n## Pending steps\n")
	pending := make([]PlanStep, 0, len(steps))
	for i := range steps {
		if !steps[i].Removed && !executed[steps[i].ID] {
			pending = append(pending, steps[i])
		}
	}
	encoded, _ := json.Marshal(stepPlanPayload{Steps: pending})
	sb.Write(encoded)

	resp, err := r.chatModel.Generate(ctx, []*einoSchema.Message{
		{Role: einoSchema.System, Content: "You are a SQL query planner. Reply with the requested JSON and nothing else."},
		{Role: einoSchema.User, Content: sb.String()},
	})
	if err != nil {
		r.log(fmt.Sprintf("[PLAN] refinement call failed, keeping current plan: %v", err))
		return steps
	}

	revised, err := parseStepPlan(resp.Content)
	if err != nil {
		r.log(fmt.Sprintf("[PLAN] refinement reply unparseable, keeping current plan: %v", err))
		return steps
	}
	return applyRefinement(steps, executed, revised)
}

func parseStepPlan(text string) ([]PlanStep, error) {
	raw := jsonPayloadRegex.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}
	var payload stepPlanPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid step plan JSON: %w", err)
	}
	return payload.Steps, nil
}

func (r *PlanRunner) log(message string) {
	if r.logger != nil {
		r.logger(message)
	}
}
