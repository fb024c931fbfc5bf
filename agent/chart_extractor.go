package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// chartDataBlockRegex matches a fenced block tagged chartdata, including the
// fences, so the whole block can be stripped from the visible answer.
var chartDataBlockRegex = regexp.MustCompile("(?s)```chartdata\\s*(.*?)```")

// ExtractChartData scans the model's final text for a fenced chartdata block.
// It returns the parsed ChartSpec (nil when absent or malformed) and the text
// with the block stripped. The block is stripped regardless of parse success
// so raw chart JSON never reaches the user.
func ExtractChartData(text string) (*ChartSpec, string) {
	match := chartDataBlockRegex.FindStringSubmatch(text)
	cleaned := strings.TrimSpace(chartDataBlockRegex.ReplaceAllString(text, ""))
	if match == nil {
		return nil, cleaned
	}

	var raw struct {
		Type        *string                  `json:"type"`
		Data        []map[string]interface{} `json:"data"`
		XAxisKey    string                   `json:"xAxisKey"`
		YAxisKey    string                   `json:"yAxisKey"`
		Description string                   `json:"description"`
	}
	if err := json.Unmarshal([]byte(match[1]), &raw); err != nil {
		return nil, cleaned
	}
	// Accept only if both a type field and an array data field are present.
	if raw.Type == nil || raw.Data == nil {
		return nil, cleaned
	}
	chartType := ChartType(*raw.Type)
	switch chartType {
	case ChartBar, ChartPie, ChartLine, ChartNone:
	default:
		return nil, cleaned
	}

	data := raw.Data
	if len(data) > MaxChartPoints {
		data = data[:MaxChartPoints]
	}

	return &ChartSpec{
		Type:        chartType,
		Data:        data,
		XAxisKey:    raw.XAxisKey,
		YAxisKey:    raw.YAxisKey,
		Description: raw.Description,
	}, cleaned
}

// Keyword groups for the deterministic chart-type heuristic. These mirror the
// decision table given to the model in the system instruction.
var (
	pieKeywords  = []string{"proportion", "share", "percentage", "percent", "breakdown", "distribution", "composition", "ratio of"}
	lineKeywords = []string{"trend", "over time", "per month", "per day", "per year", "monthly", "daily", "weekly", "yearly", "growth", "change over", "timeline"}
	barKeywords  = []string{"top ", "bottom ", "most", "least", "highest", "lowest", "rank", "compare", "comparison", "versus", " vs ", "largest", "smallest", "best", "worst"}
)

// DecideChartType is a pure heuristic mapping question intent and result
// shape to a chart type. It is usable as a deterministic fallback or as a
// sanity check against the model's own choice.
func DecideChartType(question string, rowCount, numericColumns int) ChartType {
	if rowCount <= 1 || numericColumns == 0 {
		return ChartNone
	}

	lower := strings.ToLower(question)
	for _, kw := range pieKeywords {
		if strings.Contains(lower, kw) {
			return ChartPie
		}
	}
	for _, kw := range lineKeywords {
		if strings.Contains(lower, kw) {
			return ChartLine
		}
	}
	for _, kw := range barKeywords {
		if strings.Contains(lower, kw) {
			return ChartBar
		}
	}
	return ChartNone
}
