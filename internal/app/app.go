// Package app is the terminal UI: a task menu plus live progress for
// aggregation runs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/figcoco/internal/orchestrator"
)

// Status values shown per archive.
const (
	StatusExtracting = "Extracting"
	StatusExtracted  = "Extracted"
	StatusMerged     = "Merged"
	StatusError      = "Error"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle               = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		StatusExtracting: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		StatusExtracted:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StatusMerged:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		StatusError:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Task is a unit of work launched from the menu. It reports progress through
// observer and returns a short result text for the result screen.
type Task func(ctx context.Context, observer orchestrator.Observer) (string, error)

// MenuItem is one menu entry.
type MenuItem struct {
	Title string
	Task  Task
}

type FileProgress struct {
	FileName string
	Status   string
	Batch    int
	ErrMsg   string
	Start    time.Time
	Elapsed  time.Duration
}

type AppModel struct {
	State            AppState
	items            []MenuItem
	menuCursor       int
	autoStart        int
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	fileProgress   map[string]*FileProgress
	fileOrder      []string
	overallTotal   int64
	overallCurrent int64
	currentTaskTag string
	lastActivity   string

	lastResult string
	lastError  error
	Quitting   bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewAppModel builds the menu from items; an Exit entry is appended.
func NewAppModel(ctx context.Context, items []MenuItem, logger *slog.Logger) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)

	return &AppModel{
		State:           ShowMenu,
		items:           append(append([]MenuItem(nil), items...), MenuItem{Title: "Exit"}),
		autoStart:       -1,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		fileProgress:    make(map[string]*FileProgress),
		termWidth:       80,
		termHeight:      24,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// StartWith makes Init launch the item at index instead of waiting in the menu.
func (m *AppModel) StartWith(index int) *AppModel {
	m.autoStart = index
	return m
}

// Err returns the error of the last finished task.
func (m *AppModel) Err() error { return m.lastError }

// Run drives the program until the user quits, then cancels any running task
// and waits for it to return.
func Run(m *AppModel, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(m, opts...).Run()
	m.cancel()
	m.wg.Wait()
	return err
}

func (m *AppModel) Init() tea.Cmd {
	if m.autoStart >= 0 && m.autoStart < len(m.items)-1 {
		return m.startTask(m.autoStart)
	}
	return m.spinner.Tick
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.State {
		case ShowMenu:
			cmds = append(cmds, m.handleMenuKey(msg))
		case ShowResult, ShowError:
			switch msg.String() {
			case "enter", "esc":
				m.State = ShowMenu
			case "ctrl+c", "q":
				return m, m.quit()
			}
		case Exiting:
			return m, nil
		default:
			if msg.String() == "ctrl+c" || msg.String() == "q" {
				m.logger.Warn("Quit requested during task, cancelling.", slog.String("task", m.currentTaskTag))
				return m, m.quit()
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.currentTaskTag = msg.Tag
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent), m.waitForActivityCmd(m.uiMsgChan))
	case FileProgressMsg:
		fp, exists := m.fileProgress[msg.FileID]
		if !exists {
			fp = &FileProgress{FileName: msg.FileName, Start: time.Now()}
			m.fileProgress[msg.FileID] = fp
			m.fileOrder = append(m.fileOrder, msg.FileID)
		}
		fp.Status = msg.Status
		fp.Batch = msg.Batch
		fp.ErrMsg = msg.ErrMsg
		if msg.Status != StatusExtracting && fp.Elapsed == 0 {
			fp.Elapsed = time.Since(fp.Start)
		}
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	case BatchDoneMsg:
		for _, id := range m.fileOrder {
			fp := m.fileProgress[id]
			if fp.Batch == msg.Batch && fp.Status != StatusError {
				fp.Status = StatusMerged
			}
		}
		m.lastActivity = fmt.Sprintf("batch %d merged: %d images, %d annotations", msg.Batch, msg.Images, msg.Annotations)
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	case TaskFinishedMsg:
		m.uiMsgChan = nil
		d := msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond)
		if msg.Err != nil {
			m.logger.Error("Task failed.", slog.String("task", msg.Tag), slog.Duration("duration", d), "error", msg.Err)
			m.lastError = fmt.Errorf("task '%s' failed: %w", msg.Tag, msg.Err)
			m.State = ShowError
		} else {
			m.logger.Info("Task finished.", slog.String("task", msg.Tag), slog.Duration("duration", d))
			m.lastError = nil
			m.lastResult = msg.Message
			m.State = ShowResult
		}
	case spinner.TickMsg:
		if m.State == RunningTask {
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

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- figcoco ---"))
	b.WriteString("\n\n")

	switch m.State {
	case ShowMenu:
		b.WriteString(m.viewMenu())
	case RunningTask:
		b.WriteString(m.viewProgress())
	case ShowResult:
		if m.overallTotal > 0 {
			b.WriteString(m.viewProgress())
			b.WriteString("\n")
		}
		b.WriteString(m.lastResult)
	case ShowError:
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	switch m.State {
	case ShowMenu:
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	case RunningTask:
		b.WriteString(infoStyle.Render("Task running... 'q' or Ctrl+C to cancel and quit."))
	case ShowResult, ShowError:
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu. 'q' or Ctrl+C to quit."))
	}

	return b.String()
}

func (m *AppModel) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")
	for i, item := range m.items {
		line := "  " + item.Title
		if m.menuCursor == i {
			line = "> " + selectedStyle.Render(item.Title)
		}
		b.WriteString(menuStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewProgress() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Running Task: %s %s\n", m.spinner.View(), m.currentTaskTag, m.lastActivity))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.overallCurrent, m.overallTotal))

	maxLines := max(1, m.termHeight-10)
	startIdx := max(0, len(m.fileOrder)-maxLines)

	if len(m.fileOrder) > 0 {
		b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-40s | %-5s | %-10s | %s", "Archive", "Batch", "Status", "Elapsed")))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", m.termWidth))
		b.WriteString("\n")
		for _, id := range m.fileOrder[startIdx:] {
			fp := m.fileProgress[id]
			style, ok := fileStatusStyle[fp.Status]
			if !ok {
				style = infoStyle
			}
			elapsed := ""
			if fp.Elapsed > 0 {
				elapsed = fp.Elapsed.Round(time.Millisecond).String()
			}
			name := fp.FileName
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			b.WriteString(fmt.Sprintf("%-40s | %-5d | %s | %s", name, fp.Batch, style.Render(fmt.Sprintf("%-10s", fp.Status)), elapsed))
			if fp.Status == StatusError && fp.ErrMsg != "" {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render(truncate("  -> Error: "+fp.ErrMsg, m.termWidth-1)))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("An error occurred:"))
	b.WriteString("\n\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

func (m *AppModel) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.items)-1 {
			m.menuCursor++
		}
	case "enter":
		if m.items[m.menuCursor].Task == nil {
			return m.quit()
		}
		return m.startTask(m.menuCursor)
	case "ctrl+c", "q":
		return m.quit()
	}
	return nil
}

func (m *AppModel) quit() tea.Cmd {
	m.cancel()
	m.Quitting = true
	m.State = Exiting
	return tea.Quit
}

// startTask runs the item's task on its own goroutine. Progress flows back
// through uiMsgChan; sends give up once the model's context is cancelled so
// the goroutine cannot outlive the program.
func (m *AppModel) startTask(index int) tea.Cmd {
	item := m.items[index]
	m.logger.Info("Starting task.", slog.String("task", item.Title))
	m.State = RunningTask
	m.currentTaskTag = item.Title
	m.lastActivity = ""
	m.lastResult = ""
	m.lastError = nil
	m.fileProgress = make(map[string]*FileProgress)
	m.fileOrder = nil
	m.overallCurrent, m.overallTotal = 0, 0

	ch := make(chan tea.Msg)
	m.uiMsgChan = ch
	ctx := m.ctx
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}

	start := time.Now()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result, err := item.Task(ctx, progressObserver(item.Title, send))
		send(NewTaskFinished(item.Title, start, err, result))
	}()
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd(ch))
}

func (m *AppModel) waitForActivityCmd(ch chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// progressObserver translates scheduler progress into UI messages. It is
// called from extraction workers concurrently.
func progressObserver(tag string, send func(tea.Msg)) orchestrator.Observer {
	return func(p orchestrator.Progress) {
		switch p.Kind {
		case orchestrator.BatchStarted:
			send(NewProgress(tag, int64(p.Batch), int64(p.TotalBatches),
				fmt.Sprintf("batch %d/%d (%d archives)", p.Batch+1, p.TotalBatches, p.Archives)))
		case orchestrator.ArchiveExtracted:
			status, errMsg := StatusExtracted, ""
			if p.Err != nil {
				status, errMsg = StatusError, p.Err.Error()
			}
			send(NewFileProgress(p.Archive, displayName(p.Archive), status, p.Batch, errMsg))
		case orchestrator.BatchPersisted:
			send(BatchDoneMsg{Batch: p.Batch, Images: p.Images, Annotations: p.Annotations})
			send(NewProgress(tag, int64(p.Batch+1), int64(p.TotalBatches),
				fmt.Sprintf("batch %d/%d merged", p.Batch+1, p.TotalBatches)))
		}
	}
}

// displayName keeps the worker directory, which is what tells archives apart.
func displayName(archive string) string {
	return filepath.Join(filepath.Base(filepath.Dir(archive)), filepath.Base(archive))
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
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
