package app

import (
	"fmt"
	"time"

	"github.com/brensch/csvevents/internal/processor"
)

// File statuses shown in the per-file table.
const (
	StatusProcessing = "Processing"
	StatusArchived   = "Archived"
	StatusSkipped    = "Skipped"
	StatusError      = "Error"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Current  int64
	Total    int64
	Activity string
}

// FileProgressMsg updates one row of the file table.
type FileProgressMsg struct {
	FileName    string
	DataType    string
	Status      string
	Rows        int64
	ElapsedTime time.Duration
	ErrMsg      string
}

// TaskFinishedMsg signals that the run returned.
type TaskFinishedMsg struct {
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func NewTaskFinished(start time.Time, err error) TaskFinishedMsg {
	return TaskFinishedMsg{StartTime: start, EndTime: time.Now(), Err: err}
}

// FromProgress translates a processor update into view messages.
func FromProgress(p processor.Progress) (ProgressMsg, FileProgressMsg) {
	overall := ProgressMsg{Current: int64(p.FilesDone), Total: int64(p.TotalFiles), Activity: p.CurrentFile}

	status := StatusProcessing
	errMsg := ""
	switch {
	case p.Err != nil:
		status = StatusError
		errMsg = p.Err.Error()
	case p.Skipped:
		status = StatusSkipped
	case p.Complete && p.Archived:
		status = StatusArchived
	}
	file := FileProgressMsg{
		FileName:    p.CurrentFile,
		DataType:    p.DataType,
		Status:      status,
		Rows:        p.RowsProcessed,
		ElapsedTime: p.ElapsedTime,
		ErrMsg:      errMsg,
	}
	return overall, file
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress: %d/%d", p.Current, p.Total)
}
func (fp FileProgressMsg) String() string {
	return fmt.Sprintf("FileProgress %s: %s", fp.FileName, fp.Status)
}
func (tf TaskFinishedMsg) String() string { return "TaskFinished" }
