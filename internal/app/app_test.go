package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/csvevents/internal/processor"
)

func TestFromProgress(t *testing.T) {
	tests := []struct {
		name   string
		in     processor.Progress
		status string
	}{
		{"running", processor.Progress{CurrentFile: "a.csv", RowsProcessed: 10}, StatusProcessing},
		{"archived", processor.Progress{CurrentFile: "a.csv", Complete: true, Archived: true}, StatusArchived},
		{"skipped", processor.Progress{CurrentFile: "b.csv", Complete: true, Skipped: true}, StatusSkipped},
		{"error", processor.Progress{CurrentFile: "c.csv", Complete: true, Err: errors.New("boom")}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overall, file := FromProgress(tt.in)
			assert.Equal(t, tt.in.CurrentFile, overall.Activity)
			assert.Equal(t, tt.status, file.Status)
			if tt.in.Err != nil {
				assert.Equal(t, "boom", file.ErrMsg)
			}
		})
	}
}

func TestRunModel_Update(t *testing.T) {
	m := NewRunModel(nil, nil)

	_, _ = m.Update(ProgressMsg{Current: 1, Total: 3, Activity: "PDW_1.csv"})
	_, _ = m.Update(FileProgressMsg{FileName: "PDW_1.csv", DataType: "pdw", Status: StatusArchived, Rows: 42, ElapsedTime: time.Second})
	_, _ = m.Update(FileProgressMsg{FileName: "junk.csv", Status: StatusSkipped})

	view := m.View()
	assert.Contains(t, view, "csvEvents")
	assert.Contains(t, view, "PDW_1.csv")
	assert.Contains(t, view, "junk.csv")
	assert.Contains(t, view, "(1/3)")
	assert.Equal(t, []string{"PDW_1.csv", "junk.csv"}, m.fileOrder)

	_, cmd := m.Update(TaskFinishedMsg{StartTime: time.Now(), EndTime: time.Now()})
	require.NotNil(t, cmd)
	assert.Equal(t, Finished, m.State)
	assert.Contains(t, m.View(), "Run finished")
}

func TestRunModel_CancelKey(t *testing.T) {
	cancelled := false
	m := NewRunModel(nil, func() { cancelled = true })

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.Equal(t, Cancelling, m.State)

	_, _ = m.Update(TaskFinishedMsg{Err: context.Canceled})
	assert.Contains(t, m.View(), "context canceled")
}

func TestRunModel_WaitForActivity(t *testing.T) {
	msgs := make(chan tea.Msg, 1)
	m := NewRunModel(msgs, nil)

	msgs <- ProgressMsg{Current: 2, Total: 2}
	got := m.waitForActivityCmd()()
	assert.Equal(t, ProgressMsg{Current: 2, Total: 2}, got)

	close(msgs)
	assert.Nil(t, m.waitForActivityCmd()())
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "as is", wrapText("as is", 0))
}
