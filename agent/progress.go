package agent

// PlanEventType identifies a progress notification during one plan run.
type PlanEventType string

const (
	EventPlanGenerated PlanEventType = "plan_generated"
	EventStepStarted   PlanEventType = "step_started"
	EventStepCompleted PlanEventType = "step_completed"
	EventStepError     PlanEventType = "step_error"
	EventPlanCompleted PlanEventType = "plan_completed"
)

// PlanStepEvent is one progress notification. Step events carry enough of the
// QueryExecution identity for a UI to render live progress.
type PlanStepEvent struct {
	Type      PlanEventType `json:"type"`
	PlanID    string        `json:"plan_id"`
	Question  string        `json:"question,omitempty"`
	StepIndex int           `json:"step_index,omitempty"`
	SQL       string        `json:"sql,omitempty"`
	Purpose   string        `json:"purpose,omitempty"`
	RowCount  int           `json:"row_count,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// PlanProgressCallback receives progress events. The orchestrator emits
// plan_generated exactly once at the start of an invocation and
// plan_completed exactly once at the end, with step events in between.
type PlanProgressCallback func(event PlanStepEvent)

// newStepEvent creates a step-scoped event.
func newStepEvent(eventType PlanEventType, planID string, stepIndex int, exec QueryExecution) PlanStepEvent {
	return PlanStepEvent{
		Type:      eventType,
		PlanID:    planID,
		StepIndex: stepIndex,
		SQL:       exec.SQL,
		Purpose:   exec.Purpose,
		RowCount:  exec.RowCount,
		Error:     exec.Error,
	}
}
