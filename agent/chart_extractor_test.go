package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestExtractChartDataParsesBlock(t *testing.T) {
	text := "Sales are concentrated in EMEA.\n\n```chartdata\n" +
		`{"type": "bar", "data": [{"region": "EMEA", "total": 42}], "xAxisKey": "region", "yAxisKey": "total", "description": "Totals by region"}` +
		"\n```\n\nSee the chart above."

	chart, cleaned := ExtractChartData(text)
	if chart == nil {
		t.Fatal("expected a chart")
	}
	if chart.Type != ChartBar || chart.XAxisKey != "region" || chart.YAxisKey != "total" {
		t.Errorf("chart = %+v", chart)
	}
	if strings.Contains(cleaned, "chartdata") || strings.Contains(cleaned, "{") {
		t.Errorf("block not stripped from answer: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Sales are concentrated") || !strings.Contains(cleaned, "See the chart above.") {
		t.Errorf("answer text lost: %q", cleaned)
	}
}

func TestExtractChartDataStripsMalformedBlock(t *testing.T) {
	cases := []string{
		"Answer.\n```chartdata\nnot json at all\n```",
		"Answer.\n```chartdata\n{\"data\": [{\"a\": 1}]}\n```",            // missing type
		"Answer.\n```chartdata\n{\"type\": \"bar\"}\n```",                 // missing data
		"Answer.\n```chartdata\n{\"type\": \"donut\", \"data\": []}\n```", // unknown type
	}
	for _, text := range cases {
		chart, cleaned := ExtractChartData(text)
		if chart != nil {
			t.Errorf("expected no chart for %q, got %+v", text, chart)
		}
		if strings.Contains(cleaned, "chartdata") {
			t.Errorf("malformed block not stripped: %q", cleaned)
		}
	}
}

func TestExtractChartDataNoBlock(t *testing.T) {
	chart, cleaned := ExtractChartData("Just a plain answer.")
	if chart != nil {
		t.Errorf("unexpected chart: %+v", chart)
	}
	if cleaned != "Just a plain answer." {
		t.Errorf("text changed: %q", cleaned)
	}
}

func TestExtractChartDataClipsPoints(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(t, "points")
		data := make([]map[string]interface{}, n)
		for i := range data {
			data[i] = map[string]interface{}{"k": fmt.Sprintf("p%d", i), "v": i}
		}
		block, _ := json.Marshal(map[string]interface{}{"type": "line", "data": data})
		text := "Answer.\n```chartdata\n" + string(block) + "\n```"

		chart, _ := ExtractChartData(text)
		if chart == nil {
			t.Fatalf("expected a chart for %d points", n)
		}
		want := n
		if want > MaxChartPoints {
			want = MaxChartPoints
		}
		if len(chart.Data) != want {
			t.Fatalf("chart has %d points, want %d", len(chart.Data), want)
		}
	})
}

func TestDecideChartType(t *testing.T) {
	cases := []struct {
		question string
		rows     int
		numeric  int
		want     ChartType
	}{
		{"What share of revenue comes from each region?", 5, 1, ChartPie},
		{"Show the monthly revenue trend", 12, 1, ChartLine},
		{"Top 10 customers by revenue", 10, 1, ChartBar},
		{"List all customer names", 10, 0, ChartNone},
		{"What is the total revenue?", 1, 1, ChartNone},
		{"Describe the orders table", 10, 2, ChartNone},
	}
	for _, c := range cases {
		if got := DecideChartType(c.question, c.rows, c.numeric); got != c.want {
			t.Errorf("DecideChartType(%q, %d, %d) = %q, want %q", c.question, c.rows, c.numeric, got, c.want)
		}
	}
}
