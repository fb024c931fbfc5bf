package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestValidateReadOnly(t *testing.T) {
	allowed := []string{
		"SELECT * FROM users",
		"select count(*) from orders",
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
		"  \n SELECT 1",
		"-- just a comment\nSELECT name FROM users",
		"/* header */ SELECT name FROM users",
	}
	for _, sql := range allowed {
		if err := ValidateReadOnly(sql); err != nil {
			t.Errorf("ValidateReadOnly(%q) = %v, want nil", sql, err)
		}
	}

	rejected := []string{
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"DELETE FROM users",
		"DROP TABLE users",
		"-- SELECT\nDELETE FROM users",
		"/* SELECT */ TRUNCATE users",
		"",
		"-- only a comment",
	}
	for _, sql := range rejected {
		if err := ValidateReadOnly(sql); err == nil {
			t.Errorf("ValidateReadOnly(%q) = nil, want error", sql)
		}
	}
}

func toolCall(id, sql, purpose string) schema.ToolCall {
	args, _ := json.Marshal(sqlToolArgs{SQL: sql, Purpose: purpose})
	return schema.ToolCall{
		ID:       id,
		Function: schema.FunctionCall{Name: SQLToolName, Arguments: string(args)},
	}
}

func TestExecuteToolHappyPath(t *testing.T) {
	var seenSQL string
	executor := func(ctx context.Context, sqlText string) (*SQLResult, error) {
		seenSQL = sqlText
		return &SQLResult{
			Data:     []map[string]interface{}{{"region": "EMEA", "total": 42}},
			RowCount: 1,
		}, nil
	}
	tool := NewExecuteSQLTool(executor, SQLDialect{DatabaseType: "mysql", DatabaseName: "sales"}, 2, 1000, nil)

	exec, payload := tool.Execute(context.Background(), toolCall("call_1", "SELECT region, total FROM sales.summary", "totals by region"))
	if !exec.Succeeded() {
		t.Fatalf("unexpected failure: %s", exec.Error)
	}
	if exec.Purpose != "totals by region" {
		t.Errorf("purpose = %q", exec.Purpose)
	}
	if !strings.Contains(seenSQL, "LIMIT 1000") {
		t.Errorf("row limit was not injected: %q", seenSQL)
	}

	var body toolSuccessPayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if body.RowCount != 1 || len(body.Data) != 1 {
		t.Errorf("payload rowCount=%d len(data)=%d", body.RowCount, len(body.Data))
	}
}

func TestExecuteToolRejectsMutation(t *testing.T) {
	called := false
	executor := func(ctx context.Context, sqlText string) (*SQLResult, error) {
		called = true
		return &SQLResult{}, nil
	}
	tool := NewExecuteSQLTool(executor, SQLDialect{DatabaseType: "mysql"}, 2, 1000, nil)

	exec, payload := tool.Execute(context.Background(), toolCall("call_1", "DELETE FROM users", "cleanup"))
	if exec.Succeeded() {
		t.Fatal("mutation must fail validation")
	}
	if called {
		t.Error("executor must not run for rejected SQL")
	}

	var body toolFailurePayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if !strings.Contains(body.Error, "SELECT") {
		t.Errorf("failure payload error = %q", body.Error)
	}
}

func TestExecuteToolInvalidArguments(t *testing.T) {
	tool := NewExecuteSQLTool(func(ctx context.Context, sqlText string) (*SQLResult, error) {
		t.Fatal("executor must not run")
		return nil, nil
	}, SQLDialect{}, 2, 1000, nil)

	exec, payload := tool.Execute(context.Background(), schema.ToolCall{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: SQLToolName, Arguments: "not json"},
	})
	if exec.Succeeded() {
		t.Fatal("invalid arguments must fail")
	}
	var body toolFailurePayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if body.Suggestion == "" {
		t.Error("failure payload must carry a suggestion")
	}
}

func TestExecuteToolTruncatesHugePayload(t *testing.T) {
	// 1000 rows of ~100 bytes each overflows the 50KB payload clamp.
	wide := strings.Repeat("x", 100)
	rows := make([]map[string]interface{}, 1000)
	for i := range rows {
		rows[i] = map[string]interface{}{"value": wide}
	}
	executor := func(ctx context.Context, sqlText string) (*SQLResult, error) {
		return &SQLResult{Data: rows, RowCount: len(rows)}, nil
	}
	tool := NewExecuteSQLTool(executor, SQLDialect{DatabaseType: "mysql"}, 0, 0, nil)

	exec, payload := tool.Execute(context.Background(), toolCall("call_1", "SELECT value FROM big LIMIT 1000", "wide"))
	if !exec.Succeeded() {
		t.Fatalf("unexpected failure: %s", exec.Error)
	}
	if len(payload) > maxToolPayloadBytes {
		t.Errorf("payload size %d exceeds clamp %d", len(payload), maxToolPayloadBytes)
	}

	var body toolSuccessPayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(body.Data) != 25 {
		t.Errorf("truncated payload carries %d rows, want 25", len(body.Data))
	}
	if body.Note == "" {
		t.Error("truncated payload must carry a note")
	}
	// The plan-side record keeps the full result.
	if len(exec.Result) != 1000 {
		t.Errorf("execution record has %d rows, want all 1000", len(exec.Result))
	}
}
