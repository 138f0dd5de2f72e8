package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"photoproc/internal/domain"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Phase represents the current state of the TUI
type Phase int

const (
	PhaseScanning Phase = iota
	PhaseConfirm
	PhaseExecuting
	PhaseDone
	PhaseError
)

// Messages for the TUI
type (
	BatchReadyMsg struct {
		Batch    *domain.Batch
		Warnings []string
	}
	ScanProgressMsg struct {
		Current int
		Total   int
	}
	StageMsg struct {
		Stage domain.Stage
	}
	StageProgressMsg struct {
		Stage   domain.Stage
		Current int
		Total   int
	}
	RunDoneMsg struct {
		Report domain.BatchReport
	}
	ErrorMsg struct {
		Err error
	}
	ConfirmMsg struct{ Confirmed bool }
	tickMsg    time.Time
)

// ExecuteRunFunc starts the pipeline run. It should run in a goroutine and
// send stage/progress/done messages back into the program.
type ExecuteRunFunc func(batch *domain.Batch) tea.Cmd

// Config for the TUI
type Config struct {
	Roots      []string
	Stages     []domain.Stage
	Timezone   string
	DryRun     bool
	Verbose    bool
	ExecuteRun ExecuteRunFunc
}

// Model is the main TUI model
type Model struct {
	config           Config
	Phase            Phase
	Batch            *domain.Batch
	Report           domain.BatchReport
	warnings         []string
	spinner          spinner.Model
	progress         progress.Model
	scanCurrent      int
	scanTotal        int
	stage            domain.Stage
	stageCurrent     int
	stageTotal       int
	confirmSelection bool // true = yes, false = no
	Err              error
	Quitting         bool
	width            int
	height           int
}

// NewModel creates a new TUI model
func NewModel(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return Model{
		config:           cfg,
		Phase:            PhaseScanning,
		spinner:          s,
		progress:         p,
		confirmSelection: false, // default to No
		width:            80,
		height:           24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(msg.Width-20, 60)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.Quitting = true
			return m, tea.Quit
		case "left", "h", "y", "Y":
			if m.Phase == PhaseConfirm {
				m.confirmSelection = true
			}
		case "right", "l", "n", "N":
			if m.Phase == PhaseConfirm {
				m.confirmSelection = false
			}
		case "enter":
			if m.Phase == PhaseConfirm {
				return m, func() tea.Msg {
					return ConfirmMsg{Confirmed: m.confirmSelection}
				}
			}
			if m.Phase == PhaseDone || m.Phase == PhaseError {
				return m, tea.Quit
			}
		}

	case ScanProgressMsg:
		m.scanCurrent = msg.Current
		m.scanTotal = msg.Total
		return m, nil

	case BatchReadyMsg:
		m.Batch = msg.Batch
		m.warnings = msg.Warnings
		if m.config.DryRun {
			// Dry runs execute immediately; nothing touches disk.
			m.Phase = PhaseExecuting
			if m.config.ExecuteRun != nil {
				return m, tea.Batch(tickCmd(), m.config.ExecuteRun(m.Batch))
			}
		} else {
			m.Phase = PhaseConfirm
		}
		return m, nil

	case ConfirmMsg:
		if !msg.Confirmed {
			m.Quitting = true
			return m, tea.Quit
		}
		m.Phase = PhaseExecuting
		if m.config.ExecuteRun != nil {
			return m, tea.Batch(tickCmd(), m.config.ExecuteRun(m.Batch))
		}
		return m, nil

	case StageMsg:
		m.stage = msg.Stage
		m.stageCurrent = 0
		m.stageTotal = 0
		return m, nil

	case StageProgressMsg:
		m.stage = msg.Stage
		m.stageCurrent = msg.Current
		m.stageTotal = msg.Total
		return m, nil

	case RunDoneMsg:
		m.Report = msg.Report
		m.Phase = PhaseDone
		return m, nil

	case ErrorMsg:
		m.Phase = PhaseError
		m.Err = msg.Err
		return m, nil

	case spinner.TickMsg:
		if m.Phase == PhaseScanning || m.Phase == PhaseExecuting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tickMsg:
		if m.Phase == PhaseExecuting {
			var cmds []tea.Cmd
			if m.stageTotal > 0 {
				cmds = append(cmds, m.progress.SetPercent(float64(m.stageCurrent)/float64(m.stageTotal)))
			}
			cmds = append(cmds, tickCmd(), m.spinner.Tick)
			return m, tea.Batch(cmds...)
		}
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch m.Phase {
	case PhaseScanning:
		b.WriteString(m.renderScanning())
	case PhaseConfirm:
		b.WriteString(m.renderPreview())
		b.WriteString("\n")
		b.WriteString(m.renderConfirmPrompt())
	case PhaseExecuting:
		b.WriteString(m.renderPreview())
		b.WriteString("\n")
		b.WriteString(m.renderExecution())
	case PhaseDone:
		b.WriteString(m.renderReport())
	case PhaseError:
		b.WriteString(m.renderError())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("📷 photoproc")
	subtitle := subtitleStyle.Render("Timestamps, names and places in order")

	dimStyle := lipgloss.NewStyle().Foreground(dimTextColor)

	lines := []string{title, subtitle, ""}
	for _, root := range m.config.Roots {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%s %s", iconFolder, shortenPath(root))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderScanning() string {
	if m.scanTotal > 0 {
		percent := float64(m.scanCurrent) / float64(m.scanTotal)
		progressBar := m.progress.ViewAs(percent)

		countStyle := lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
		percentStyle := lipgloss.NewStyle().Foreground(dimTextColor)

		return fmt.Sprintf("%s Reading capture times...\n\n  %s\n  %s %s",
			m.spinner.View(),
			progressBar,
			countStyle.Render(fmt.Sprintf("%d/%d", m.scanCurrent, m.scanTotal)),
			percentStyle.Render(fmt.Sprintf("(%.0f%%)", percent*100)),
		)
	}
	return fmt.Sprintf("%s Scanning photos...", m.spinner.View())
}

func (m Model) renderPreview() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Batch"))
	b.WriteString("\n\n")

	if m.Batch == nil || len(m.Batch.Records) == 0 {
		dimStyle := lipgloss.NewStyle().Foreground(dimTextColor)
		b.WriteString(dimStyle.Render("  No image files found"))
		b.WriteString("\n")
		return b.String()
	}

	for _, line := range formatRecordList(m.Batch.Records, 4) {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s  %s\n",
		statLabelStyle.Render("Images:"),
		statValueStyle.Render(fmt.Sprintf("%s %d", iconImage, len(m.Batch.Records)))))
	b.WriteString(fmt.Sprintf("  %s  %s\n",
		statLabelStyle.Render("Track files:"),
		statValueStyle.Render(fmt.Sprintf("%s %d", iconTrack, len(m.Batch.TrackFiles)))))
	if m.config.Timezone != "" {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			statLabelStyle.Render("Timezone:"),
			statValueStyle.Render(m.config.Timezone)))
	}

	if m.config.Verbose && len(m.warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("Warnings:"))
		b.WriteString("\n")
		for _, w := range m.warnings {
			b.WriteString(fmt.Sprintf("  %s %s\n", iconWarning, w))
		}
	}

	if m.config.DryRun {
		b.WriteString("\n")
		b.WriteString(highlightBoxStyle.Render("🔍 Dry Run - No files will be modified"))
	}

	return b.String()
}

func (m Model) renderConfirmPrompt() string {
	count := 0
	if m.Batch != nil {
		count = len(m.Batch.Records)
	}
	prompt := confirmPromptStyle.Render(fmt.Sprintf("Process %d files?", count))

	var yesBtn, noBtn string
	if m.confirmSelection {
		yesBtn = highlightBoxStyle.Copy().
			Background(lipgloss.Color("#2D5A27")).
			Render(" Yes ")
		noBtn = boxStyle.Render(" No ")
	} else {
		yesBtn = boxStyle.Render(" Yes ")
		noBtn = highlightBoxStyle.Copy().
			Background(lipgloss.Color("#5A2727")).
			Render(" No ")
	}

	buttons := lipgloss.JoinHorizontal(lipgloss.Center, yesBtn, "  ", noBtn)

	return lipgloss.JoinVertical(lipgloss.Left, prompt, "", buttons)
}

func (m Model) renderExecution() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Processing"))
	b.WriteString("\n\n")

	stageName := "starting"
	if m.stage != "" {
		stageName = string(m.stage)
	}
	b.WriteString(fmt.Sprintf("  %s Stage %s\n\n", m.spinner.View(), stageStyle.Render(stageName)))

	percent := 0.0
	if m.stageTotal > 0 {
		percent = float64(m.stageCurrent) / float64(m.stageTotal)
	}
	b.WriteString(fmt.Sprintf("  %s\n", m.progress.ViewAs(percent)))

	countStyle := lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	percentStyle := lipgloss.NewStyle().Foreground(dimTextColor)
	b.WriteString(fmt.Sprintf("  %s %s\n",
		countStyle.Render(fmt.Sprintf("%d/%d files", m.stageCurrent, m.stageTotal)),
		percentStyle.Render(fmt.Sprintf("(%.0f%%)", percent*100)),
	))

	return b.String()
}

func (m Model) renderReport() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Run Complete"))
	b.WriteString("\n\n")

	if m.Report.State == domain.RunAborted {
		b.WriteString(fmt.Sprintf("  %s %s\n\n",
			errorStyle.Render(iconError),
			errorStyle.Render(fmt.Sprintf("Aborted at stage %s: %s", m.Report.AbortedStage, m.Report.AbortReason))))
	} else {
		b.WriteString(fmt.Sprintf("  %s %s\n\n",
			successStyle.Render(iconSuccess),
			successStyle.Render("All stages completed")))
	}

	dimStyle := lipgloss.NewStyle().Foreground(dimTextColor)
	for _, stage := range m.Report.StageOrder {
		counts := m.Report.Counts(stage)
		line := fmt.Sprintf("%d %s, %d %s, %d %s",
			counts.Success, iconSuccess, counts.Failed, iconError, counts.Skipped, iconSkipped)
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			statLabelStyle.Render(string(stage)+":"),
			dimStyle.Render(line)))
	}

	failed := m.Report.FailedRecords()
	if len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(fmt.Sprintf("%s %d files failed", iconWarning, len(failed))))
		b.WriteString("\n")
		for i, rec := range failed {
			if i >= 4 {
				b.WriteString(fmt.Sprintf("  ... and %d more\n", len(failed)-4))
				break
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", iconError, fileNameStyle.Render(rec.Name)))
		}
	}

	if m.config.DryRun {
		b.WriteString("\n")
		b.WriteString(highlightBoxStyle.Render("🔍 Dry Run - No files were modified"))
	}

	return b.String()
}

func (m Model) renderError() string {
	icon := errorStyle.Render(iconError)
	msg := errorStyle.Render(fmt.Sprintf("Error: %s", m.Err.Error()))

	return highlightBoxStyle.Copy().
		BorderForeground(errorColor).
		Render(fmt.Sprintf("%s %s", icon, msg))
}

func (m Model) renderHelp() string {
	var help string
	switch m.Phase {
	case PhaseScanning:
		help = "Press q to quit"
	case PhaseConfirm:
		help = "← → or y/n to select • Enter to confirm • q to quit"
	case PhaseExecuting:
		help = "Processing files... Please wait"
	case PhaseDone:
		help = "Press Enter to exit"
	case PhaseError:
		help = "Press Enter or q to exit"
	}
	return helpStyle.Render(help)
}

// formatRecordList formats a list of records for display
func formatRecordList(records []*domain.PhotoRecord, maxItems int) []string {
	if len(records) == 0 {
		return []string{}
	}

	lines := make([]string, 0, min(len(records), maxItems+1))

	if len(records) > maxItems {
		half := maxItems / 2
		for i := 0; i < half; i++ {
			lines = append(lines, formatRecordItem(records[i]))
		}
		dimStyle := lipgloss.NewStyle().Foreground(dimTextColor)
		lines = append(lines, dimStyle.Render(fmt.Sprintf("... %d more files ...", len(records)-maxItems)))
		for i := len(records) - half; i < len(records); i++ {
			lines = append(lines, formatRecordItem(records[i]))
		}
	} else {
		for i := 0; i < len(records); i++ {
			lines = append(lines, formatRecordItem(records[i]))
		}
	}

	return lines
}

func formatRecordItem(rec *domain.PhotoRecord) string {
	name := fileNameStyle.Render(rec.Name)
	date := dateStyle.Render(rec.Timestamp().Format("2006-01-02 15:04"))
	return fmt.Sprintf("%s %s  %s", iconImage, name, date)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// shortenPath replaces the home directory prefix with ~ for display
func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
