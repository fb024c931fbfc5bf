package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestRenderFallbackMarkdownAllFailed(t *testing.T) {
	queries := []QueryExecution{
		{SQL: "SELECT 1", Purpose: "check", Error: "connection reset"},
		{SQL: "SELECT 2", Purpose: "count", Error: "timeout"},
	}
	out := RenderFallbackMarkdown("how many orders?", queries)
	if !strings.Contains(out, "Ran 2 queries") {
		t.Errorf("summary line missing: %q", out)
	}
	if !strings.Contains(out, "None of the queries completed successfully") {
		t.Errorf("all-failed notice missing: %q", out)
	}
}

func TestRenderFallbackMarkdownShowsPreviewRows(t *testing.T) {
	rows := make([]map[string]interface{}, 8)
	for i := range rows {
		rows[i] = map[string]interface{}{"region": fmt.Sprintf("r%d", i), "total": i * 10}
	}
	queries := []QueryExecution{
		{SQL: "SELECT region, total FROM sales", Purpose: "totals by region", Result: rows, RowCount: 8},
		{SQL: "SELECT broken", Purpose: "bad one", Error: "syntax error"},
	}

	out := RenderFallbackMarkdown("totals?", queries)
	if !strings.Contains(out, "### totals by region") {
		t.Errorf("section heading missing: %q", out)
	}
	if !strings.Contains(out, "```sql\nSELECT region, total FROM sales\n```") {
		t.Errorf("sql block missing: %q", out)
	}
	if !strings.Contains(out, "| region | total |") {
		t.Errorf("table header missing: %q", out)
	}
	if !strings.Contains(out, "_Showing 5 of 8 rows._") {
		t.Errorf("truncation note missing: %q", out)
	}
	// Row 5 and later must not appear.
	if strings.Contains(out, "r5") {
		t.Errorf("preview not capped at 5 rows: %q", out)
	}
	// Failed query gets no section.
	if strings.Contains(out, "bad one") {
		t.Errorf("failed query rendered: %q", out)
	}
}

func TestRenderFallbackMarkdownEscapesCells(t *testing.T) {
	queries := []QueryExecution{{
		SQL:      "SELECT note FROM notes",
		Purpose:  "notes",
		Result:   []map[string]interface{}{{"note": "a|b\nc"}},
		RowCount: 1,
	}}
	out := RenderFallbackMarkdown("notes?", queries)
	if !strings.Contains(out, `a\|b c`) {
		t.Errorf("cell not escaped: %q", out)
	}
}

func TestSynthesizeFallsBackWithoutModel(t *testing.T) {
	s := NewAnswerSynthesizer(nil, nil)
	queries := []QueryExecution{{
		SQL:      "SELECT 1",
		Purpose:  "check",
		Result:   []map[string]interface{}{{"n": 1}},
		RowCount: 1,
	}}
	out := s.Synthesize(context.Background(), "check?", queries)
	if !strings.Contains(out, "## Analysis Results") {
		t.Errorf("deterministic rendering expected, got %q", out)
	}
}
