package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	einoSchema "github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// MaxIterations bounds the number of model turns in one invocation. The cap
// bounds both latency and cost against a looping model; when it is hit with
// tool calls still pending, the answer synthesis fallback takes over.
const MaxIterations = 5

// DefaultSchemaTopK is how many candidate tables are requested from the
// schema searcher per question.
const DefaultSchemaTopK = 5

// NoSchemaHeading starts every no-schema response, so callers and tests can
// recognize the deterministic short-circuit.
const NoSchemaHeading = "# No Database Schema Available"

// Orchestrator drives one natural-language question to a final answer: it
// retrieves schema context, runs the bounded tool-calling loop against the
// model, and reconciles the executed queries into a QueryPlan.
type Orchestrator struct {
	chatModel  model.ChatModel
	searcher   SchemaSearcher
	dialect    SQLDialect
	progress   PlanProgressCallback
	logger     func(string)
	maxRetries int
	maxRows    int
	topK       int
}

// OrchestratorOptions tunes an Orchestrator. Zero values select defaults.
type OrchestratorOptions struct {
	// Progress receives plan/step events; nil disables emission.
	Progress PlanProgressCallback
	// Logger receives diagnostic lines; nil disables logging.
	Logger func(string)
	// MaxRetries for one SQL execution (see ExecuteSQLWithRetry).
	MaxRetries int
	// MaxRows caps result sets when the model omits a limiting clause.
	MaxRows int
	// SchemaTopK is the candidate-table count requested per question.
	SchemaTopK int
}

// NewOrchestrator creates an orchestrator. The chat model handle is injected
// so tests can use doubles and hosts can run several orchestrators with
// different credentials or models.
func NewOrchestrator(chatModel model.ChatModel, searcher SchemaSearcher, dialect SQLDialect, opts *OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		chatModel:  chatModel,
		searcher:   searcher,
		dialect:    dialect,
		maxRetries: DefaultMaxRetries,
		maxRows:    DefaultMaxRows,
		topK:       DefaultSchemaTopK,
	}
	if opts != nil {
		o.progress = opts.Progress
		o.logger = opts.Logger
		if opts.MaxRetries > 0 {
			o.maxRetries = opts.MaxRetries
		}
		if opts.MaxRows > 0 {
			o.maxRows = opts.MaxRows
		}
		if opts.SchemaTopK > 0 {
			o.topK = opts.SchemaTopK
		}
	}
	return o
}

// QuestionRequest is one question-answering invocation. The Executor must
// already be bound to the target database connection by the caller.
type QuestionRequest struct {
	DatabaseID int64
	Question   string
	History    []ConversationContext
	Executor   SQLExecutor
}

// AnswerQuestion runs the full pipeline for one question. Runtime failures
// (model errors, SQL errors, panics) never propagate as errors: they produce
// a markdown error answer and a best-effort partial QueryPlan, so the caller
// retains observability into partial progress. A non-nil error is returned
// only for an invalid request.
func (o *Orchestrator) AnswerQuestion(ctx context.Context, req QuestionRequest) (resp *QuestionResponse, err error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("agent: empty question")
	}
	if req.Executor == nil {
		return nil, fmt.Errorf("agent: nil SQL executor")
	}

	plan := &QueryPlan{
		ID:           uuid.NewString(),
		Question:     req.Question,
		DatabaseType: o.dialect.DatabaseType,
		Queries:      []QueryExecution{},
	}

	o.emit(PlanStepEvent{Type: EventPlanGenerated, PlanID: plan.ID, Question: req.Question})
	defer o.emit(PlanStepEvent{Type: EventPlanCompleted, PlanID: plan.ID})

	defer func() {
		if r := recover(); r != nil {
			o.log(fmt.Sprintf("[ORCHESTRATOR] recovered from panic: %v", r))
			plan.FinalAnswer = fmt.Sprintf("## Analysis Error\n\nSomething went wrong while answering this question: %v", r)
			resp = &QuestionResponse{Answer: plan.FinalAnswer, Plan: plan}
			err = nil
		}
	}()

	search, searchErr := o.searcher.SearchSimilarTables(ctx, req.DatabaseID, req.Question, o.topK)
	if searchErr != nil || search == nil || !search.Success || len(search.Data) == 0 {
		reason := "No tables matching the question were found for this database."
		if searchErr != nil {
			reason = fmt.Sprintf("Schema search failed: %v", searchErr)
		} else if search != nil && search.Error != "" {
			reason = search.Error
		}
		o.log(fmt.Sprintf("[ORCHESTRATOR] no usable schema: %s", reason))
		plan.FinalAnswer = noSchemaAnswer(reason)
		return &QuestionResponse{Answer: plan.FinalAnswer, Plan: plan}, nil
	}

	builder := NewPromptBuilder(o.dialect, o.maxRows)
	messages := make([]*einoSchema.Message, 0, len(req.History)*2+2)
	messages = append(messages, &einoSchema.Message{
		Role:    einoSchema.System,
		Content: builder.SystemInstruction(search.Data),
	})
	messages = append(messages, builder.BuildMessages(req.History, req.Question)...)

	sqlTool := NewExecuteSQLTool(req.Executor, o.dialect, o.maxRetries, o.maxRows, o.logger)
	info, infoErr := sqlTool.Info(ctx)
	if infoErr != nil {
		plan.FinalAnswer = modelErrorMarkdown(infoErr)
		return &QuestionResponse{Answer: plan.FinalAnswer, Plan: plan}, nil
	}
	if bindErr := o.chatModel.BindTools([]*einoSchema.ToolInfo{info}); bindErr != nil {
		plan.FinalAnswer = modelErrorMarkdown(bindErr)
		return &QuestionResponse{Answer: plan.FinalAnswer, Plan: plan}, nil
	}

	finalText := ""
	for iteration := 0; iteration < MaxIterations; iteration++ {
		response, genErr := o.chatModel.Generate(ctx, messages)
		if genErr != nil {
			o.log(fmt.Sprintf("[ORCHESTRATOR] model call failed on iteration %d: %v", iteration+1, genErr))
			plan.FinalAnswer = modelErrorMarkdown(genErr)
			return &QuestionResponse{Answer: plan.FinalAnswer, Plan: plan}, nil
		}

		if len(response.ToolCalls) == 0 {
			finalText = response.Content
			break
		}

		o.log(fmt.Sprintf("[ORCHESTRATOR] iteration %d: executing %d tool call(s)", iteration+1, len(response.ToolCalls)))
		messages = append(messages, response)
		messages = append(messages, o.executeBatch(ctx, plan, sqlTool, response.ToolCalls)...)
	}

	if finalText == "" {
		if len(plan.Queries) > 0 {
			o.log("[ORCHESTRATOR] iteration cap reached, synthesizing answer from executed queries")
			finalText = NewAnswerSynthesizer(o.chatModel, o.logger).Synthesize(ctx, req.Question, plan.Queries)
		} else {
			finalText = "I wasn't able to produce an answer for this question. Please try rephrasing it."
		}
	}

	chart, cleaned := ExtractChartData(finalText)
	plan.ChartData = chart
	plan.FinalAnswer = cleaned
	return &QuestionResponse{Answer: cleaned, Plan: plan}, nil
}

// executeBatch runs every tool call of one model turn concurrently, waits
// for the whole batch, then appends the executions to the plan as one
// contiguous block and returns the tool-result messages in call order.
// Parallelism lives inside the batch; ordering between iterations stays
// strictly sequential because the join happens before any append.
func (o *Orchestrator) executeBatch(ctx context.Context, plan *QueryPlan, sqlTool *ExecuteSQLTool, calls []einoSchema.ToolCall) []*einoSchema.Message {
	baseIndex := len(plan.Queries)
	execs := make([]QueryExecution, len(calls))
	payloads := make([]string, len(calls))

	var wg sync.WaitGroup
	for i := range calls {
		var args sqlToolArgs
		_ = json.Unmarshal([]byte(calls[i].Function.Arguments), &args)
		o.emit(newStepEvent(EventStepStarted, plan.ID, baseIndex+i, QueryExecution{SQL: args.SQL, Purpose: args.Purpose}))

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			execs[i], payloads[i] = sqlTool.Execute(ctx, calls[i])
		}(i)
	}
	wg.Wait()

	toolMessages := make([]*einoSchema.Message, 0, len(calls))
	for i := range calls {
		eventType := EventStepCompleted
		if !execs[i].Succeeded() {
			eventType = EventStepError
		}
		o.emit(newStepEvent(eventType, plan.ID, baseIndex+i, execs[i]))

		toolMessages = append(toolMessages, &einoSchema.Message{
			Role:       einoSchema.Tool,
			ToolCallID: calls[i].ID,
			Content:    payloads[i],
		})
	}

	plan.appendQueries(execs...)
	return toolMessages
}

func (o *Orchestrator) emit(event PlanStepEvent) {
	if o.progress != nil {
		o.progress(event)
	}
}

func (o *Orchestrator) log(message string) {
	if o.logger != nil {
		o.logger(message)
	}
}

func noSchemaAnswer(reason string) string {
	return fmt.Sprintf(`%s

%s

To get started:
1. Check that the database connection is configured correctly
2. Make sure the schema index has been built for this database
3. Try rephrasing the question with the table or column names you expect`, NoSchemaHeading, reason)
}

func modelErrorMarkdown(err error) string {
	return fmt.Sprintf("## Analysis Error\n\nThe language model request failed: %v\n\nPlease try again in a moment.", err)
}
