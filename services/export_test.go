package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"sociohiro-backend/models"
)

func sampleLogs() []models.ExecutionLog {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []models.ExecutionLog{
		{RuleName: "Price DM", TriggerType: models.TriggerComment, ActionType: models.ActionSendDM, SenderID: "u1", TriggerText: "price?", Success: true, ExecutedAt: at},
		{RuleName: "Price DM", TriggerType: models.TriggerComment, ActionType: models.ActionSendDM, SenderID: "u2", TriggerText: "price", Success: false, ErrorReason: "RATE_LIMITED", Error: "Failed to send message: limit", ExecutedAt: at},
		{RuleName: "Thanks", TriggerType: models.TriggerMention, ActionType: models.ActionSendStoryReply, SenderID: "u3", Success: true, ExecutedAt: at},
	}
}

func TestSummarizeLogs(t *testing.T) {
	got := SummarizeLogs(sampleLogs())
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].RuleName != "Price DM" || got[0].Total != 2 || got[0].Succeeded != 1 || got[0].Failed != 1 {
		t.Errorf("unexpected first summary: %+v", got[0])
	}
	if got[1].RuleName != "Thanks" || got[1].Total != 1 {
		t.Errorf("unexpected second summary: %+v", got[1])
	}
}

func TestExportExecutionLogs(t *testing.T) {
	data, err := ExportExecutionLogs(sampleLogs(), time.UTC)
	if err != nil {
		t.Fatalf("ExportExecutionLogs() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(executionsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[0][0] != "Executed At" || rows[1][1] != "Price DM" || rows[1][0] != "2024-03-01 09:30:00" {
		t.Errorf("unexpected rows: %v", rows[:2])
	}
	if rows[2][7] != "RATE_LIMITED" {
		t.Errorf("error reason = %q, want RATE_LIMITED", rows[2][7])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if len(summary) != 3 || summary[1][0] != "Price DM" || summary[1][1] != "2" {
		t.Errorf("unexpected summary: %v", summary)
	}

	for _, name := range f.GetSheetList() {
		if name == "Sheet1" {
			t.Error("default sheet should be removed")
		}
	}
}

func TestExportExecutionLogsEmpty(t *testing.T) {
	data, err := ExportExecutionLogs(nil, nil)
	if err != nil {
		t.Fatalf("ExportExecutionLogs() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a workbook even without logs")
	}
}
