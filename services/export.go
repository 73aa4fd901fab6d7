package services

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"sociohiro-backend/models"
)

const (
	executionsSheet = "Executions"
	summarySheet    = "Summary"
)

var executionHeaders = []string{
	"Executed At", "Rule", "Trigger", "Action", "Sender", "Trigger Text", "Success", "Error Reason", "Error",
}

// RuleSummary aggregates the executions of one rule.
type RuleSummary struct {
	RuleName  string
	Total     int
	Succeeded int
	Failed    int
}

// SummarizeLogs groups execution logs by rule name, busiest rule first.
func SummarizeLogs(logs []models.ExecutionLog) []RuleSummary {
	byRule := make(map[string]*RuleSummary)
	for _, l := range logs {
		s, ok := byRule[l.RuleName]
		if !ok {
			s = &RuleSummary{RuleName: l.RuleName}
			byRule[l.RuleName] = s
		}
		s.Total++
		if l.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}

	out := make([]RuleSummary, 0, len(byRule))
	for _, s := range byRule {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].RuleName < out[j].RuleName
	})
	return out
}

// ExportExecutionLogs renders execution logs as an XLSX workbook with an
// executions sheet and a per-rule summary sheet.
func ExportExecutionLogs(logs []models.ExecutionLog, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(executionsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	// NewFile always starts with Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range executionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(executionsSheet, cell, header)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(executionHeaders), 1)
	f.SetCellStyle(executionsSheet, "A1", lastHeader, headerStyle)

	for i, l := range logs {
		row := i + 2
		values := []interface{}{
			l.ExecutedAt.In(loc).Format("2006-01-02 15:04:05"),
			l.RuleName,
			string(l.TriggerType),
			string(l.ActionType),
			l.SenderID,
			l.TriggerText,
			l.Success,
			l.ErrorReason,
			l.Error,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(executionsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	f.SetColWidth(executionsSheet, "A", "A", 20)
	f.SetColWidth(executionsSheet, "B", "E", 16)
	f.SetColWidth(executionsSheet, "F", "F", 40)
	f.SetColWidth(executionsSheet, "G", "I", 16)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summaryHeaders := []interface{}{"Rule", "Executions", "Succeeded", "Failed"}
	f.SetSheetRow(summarySheet, "A1", &summaryHeaders)
	f.SetCellStyle(summarySheet, "A1", "D1", headerStyle)

	for i, s := range SummarizeLogs(logs) {
		row := []interface{}{s.RuleName, s.Total, s.Succeeded, s.Failed}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		f.SetSheetRow(summarySheet, cell, &row)
	}
	f.SetColWidth(summarySheet, "A", "A", 30)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
