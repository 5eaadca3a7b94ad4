// Package app renders a terminal progress view for a run.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/csvevents/internal/processor"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		StatusProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StatusArchived:   lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		StatusSkipped:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusError:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type FileProgress struct {
	FileName string
	DataType string
	Status   string
	Rows     int64
	ErrMsg   string
	Start    time.Time
	Elapsed  time.Duration
}

// RunModel observes a run. It never drives it; quitting cancels the run's
// context and waits for TaskFinishedMsg.
type RunModel struct {
	State           ViewState
	spinner         spinner.Model
	overallProgress progress.Model

	fileProgress   map[string]*FileProgress
	fileOrder      []string
	overallTotal   int64
	overallCurrent int64
	lastActivity   string

	Result *TaskFinishedMsg

	termWidth  int
	termHeight int

	msgs   <-chan tea.Msg
	cancel context.CancelFunc
}

// NewRunModel reads view messages from msgs until it is closed.
func NewRunModel(msgs <-chan tea.Msg, cancel context.CancelFunc) *RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &RunModel{
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		fileProgress:    make(map[string]*FileProgress),
		termWidth:       100,
		termHeight:      30,
		msgs:            msgs,
		cancel:          cancel,
	}
}

func (m *RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd())
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.State == Running {
				m.State = Cancelling
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.overallProgress.Width = max(0, m.termWidth-20)
		return m, nil
	case ProgressMsg:
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent), m.waitForActivityCmd())
	case FileProgressMsg:
		fp, ok := m.fileProgress[msg.FileName]
		if !ok {
			fp = &FileProgress{FileName: msg.FileName, Start: time.Now()}
			m.fileProgress[msg.FileName] = fp
			m.fileOrder = append(m.fileOrder, msg.FileName)
		}
		fp.Status = msg.Status
		fp.DataType = msg.DataType
		fp.Rows = msg.Rows
		fp.ErrMsg = msg.ErrMsg
		if msg.ElapsedTime > 0 {
			fp.Elapsed = msg.ElapsedTime
		}
		cmds = append(cmds, m.waitForActivityCmd())
	case TaskFinishedMsg:
		m.Result = &msg
		m.State = Finished
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State != Finished {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *RunModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- csvEvents ---"))
	b.WriteString("\n\n")
	b.WriteString(m.viewProgress())
	b.WriteString("\n")

	switch m.State {
	case Running:
		b.WriteString(infoStyle.Render("Run in progress... 'q' or Ctrl+C to stop after the current row."))
	case Cancelling:
		b.WriteString(infoStyle.Render("Stopping..."))
	case Finished:
		if m.Result != nil && m.Result.Err != nil {
			b.WriteString(errorStyle.Render(wrapText("Run ended with error: "+m.Result.Err.Error(), m.termWidth-4)))
		} else if m.Result != nil {
			b.WriteString(infoStyle.Render(fmt.Sprintf("Run finished in %s.", m.Result.EndTime.Sub(m.Result.StartTime).Round(time.Millisecond))))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m *RunModel) viewProgress() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.lastActivity)
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	fmt.Fprintf(&b, " (%d/%d)\n\n", m.overallCurrent, m.overallTotal)

	if len(m.fileOrder) == 0 {
		return b.String()
	}
	maxLines := max(1, m.termHeight-10)
	startIdx := 0
	if len(m.fileOrder) > maxLines {
		startIdx = len(m.fileOrder) - maxLines
	}

	b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-40s | %-10s | %-10s | %-8s | %s", "File", "Type", "Status", "Rows", "Elapsed")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", max(0, m.termWidth)))
	b.WriteString("\n")
	for _, name := range m.fileOrder[startIdx:] {
		fp := m.fileProgress[name]
		style, ok := fileStatusStyle[fp.Status]
		if !ok {
			style = infoStyle
		}
		elapsed := ""
		if fp.Elapsed > 0 {
			elapsed = fp.Elapsed.Round(time.Millisecond).String()
		} else if fp.Status == StatusProcessing {
			elapsed = time.Since(fp.Start).Round(time.Second).String() + "..."
		}
		fileName := fp.FileName
		if len(fileName) > 40 {
			fileName = fileName[:37] + "..."
		}
		fmt.Fprintf(&b, "%-40s | %-10s | %s | %-8d | %s\n", fileName, fp.DataType, style.Render(fmt.Sprintf("%-10s", fp.Status)), fp.Rows, elapsed)
		if fp.Status == StatusError && fp.ErrMsg != "" {
			b.WriteString(errorStyle.Render("  -> Error: " + fp.ErrMsg))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *RunModel) waitForActivityCmd() tea.Cmd {
	if m.msgs == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.msgs
		if !ok {
			return nil
		}
		return msg
	}
}

// RunFunc is the work observed by the view.
type RunFunc func(ctx context.Context, progress chan<- processor.Progress) error

// RunWithProgress runs fn while rendering its progress to out. fn must
// close progress when done. The returned error is fn's.
func RunWithProgress(ctx context.Context, out io.Writer, fn RunFunc) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressChan := make(chan processor.Progress)
	uiMsgChan := make(chan tea.Msg)
	start := time.Now()

	var runErr error
	go func() {
		defer close(uiMsgChan)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range progressChan {
				overall, file := FromProgress(p)
				uiMsgChan <- overall
				uiMsgChan <- file
			}
		}()
		runErr = fn(runCtx, progressChan)
		<-done
		uiMsgChan <- NewTaskFinished(start, runErr)
	}()

	model := NewRunModel(uiMsgChan, cancel)
	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		cancel()
		// Drain so the run goroutine can finish.
		for range uiMsgChan {
		}
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("progress view: %w", err)
	}
	for range uiMsgChan {
	}
	return runErr
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
