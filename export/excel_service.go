package export

import (
	"bytes"
	"fmt"
	"sort"

	gospreadsheet "github.com/VantageDataChat/GoExcel"

	"datachat/agent"
)

// ExcelExportService generates XLSX workbooks from query plans (pure Go).
type ExcelExportService struct{}

// NewExcelExportService creates a new Excel export service.
func NewExcelExportService() *ExcelExportService {
	return &ExcelExportService{}
}

// ExportPlanToExcel writes every successful query of the plan to its own
// sheet. Failed queries are skipped; an error is returned only when nothing
// is exportable.
func (s *ExcelExportService) ExportPlanToExcel(plan *agent.QueryPlan) ([]byte, error) {
	if plan == nil {
		return nil, fmt.Errorf("no plan to export")
	}

	wb := gospreadsheet.New()

	sheetIndex := 0
	for i := range plan.Queries {
		q := &plan.Queries[i]
		if !q.Succeeded() || len(q.Result) == 0 {
			continue
		}

		sheetName := q.Purpose
		if sheetName == "" {
			sheetName = fmt.Sprintf("Query %d", i+1)
		}
		sheetName = sanitizeSheetName(sheetName)

		var ws *gospreadsheet.Worksheet
		if sheetIndex == 0 {
			ws = wb.GetActiveSheet()
			ws.SetTitle(sheetName)
		} else {
			var err error
			ws, err = wb.AddSheet(sheetName)
			if err != nil {
				return nil, fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
			}
		}
		sheetIndex++

		writeResultSheet(ws, q.Result)
	}

	if sheetIndex == 0 {
		return nil, fmt.Errorf("plan has no successful queries to export")
	}

	wb.Properties.Title = plan.Question
	wb.Properties.Creator = "DataChat"
	wb.Properties.Description = "Generated by DataChat analysis"
	wb.Properties.Subject = "Query results"

	var buf bytes.Buffer
	writer := gospreadsheet.NewXLSXWriter()
	if err := writer.Write(wb, &buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	return buf.Bytes(), nil
}

// writeResultSheet lays out one result set: styled header row from the
// sorted column names, then one row per result map.
func writeResultSheet(ws *gospreadsheet.Worksheet, result []map[string]interface{}) {
	columns := make([]string, 0, len(result[0]))
	for col := range result[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	headerStyle := gospreadsheet.NewStyle().
		SetFont(&gospreadsheet.Font{
			Bold:  true,
			Size:  11,
			Color: "FFFFFF",
			Name:  "Calibri",
		}).
		SetFill(&gospreadsheet.Fill{
			Type:  "solid",
			Color: "4472C4",
		}).
		SetAlignment(&gospreadsheet.Alignment{
			Horizontal: gospreadsheet.AlignCenter,
			Vertical:   gospreadsheet.AlignMiddle,
		}).
		SetBorders(&gospreadsheet.Borders{
			Left:   gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "FFFFFF"},
			Top:    gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "FFFFFF"},
			Bottom: gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "FFFFFF"},
			Right:  gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "FFFFFF"},
		})

	dataStyle := gospreadsheet.NewStyle().
		SetFont(&gospreadsheet.Font{
			Size: 10,
			Name: "Calibri",
		}).
		SetAlignment(&gospreadsheet.Alignment{
			Horizontal: gospreadsheet.AlignLeft,
			Vertical:   gospreadsheet.AlignMiddle,
			WrapText:   true,
		}).
		SetBorders(&gospreadsheet.Borders{
			Left:   gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "D9D9D9"},
			Top:    gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "D9D9D9"},
			Bottom: gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "D9D9D9"},
			Right:  gospreadsheet.Border{Style: gospreadsheet.BorderThin, Color: "D9D9D9"},
		})

	for i, col := range columns {
		cellName, _ := gospreadsheet.CellName(0, i)
		ws.SetCellValue(cellName, col)
		ws.SetCellStyle(cellName, headerStyle)

		width := float64(len([]rune(col))) * 1.5
		if width < 12 {
			width = 12
		}
		if width > 60 {
			width = 60
		}
		ws.SetColumnWidth(i, width)
	}
	ws.SetRowHeight(0, 25)

	for rowIdx, row := range result {
		excelRow := rowIdx + 1
		for colIdx, col := range columns {
			cellName, _ := gospreadsheet.CellName(excelRow, colIdx)
			ws.SetCellValue(cellName, row[col])
			ws.SetCellStyle(cellName, dataStyle)
		}
		ws.SetRowHeight(excelRow, 20)
	}

	// Keep the header visible while scrolling
	ws.FreezePane("A2")
}

// sanitizeSheetName enforces the XLSX sheet-name rules: max 31 chars, no
// \ / ? * [ ] : characters.
func sanitizeSheetName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '\\', '/', '?', '*', '[', ']', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) > 31 {
		out = out[:31]
	}
	return string(out)
}
