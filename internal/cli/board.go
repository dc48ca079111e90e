package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

type boardColumn struct {
	stage string
	tasks []models.Task
}

type boardModel struct {
	columns []boardColumn
	active  int
	width   int
	height  int

	loading bool
	err     error
}

// boardLoadedMsg carries loaded data back to the model.
type boardLoadedMsg struct {
	columns []boardColumn
	err     error
}

// Style definitions.
var (
	boardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	stageHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	priorityUrgent = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	priorityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	gateOKStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	boardHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel() boardModel {
	return boardModel{loading: true}
}

func (m boardModel) Init() tea.Cmd {
	return loadBoard
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			if len(m.columns) > 0 {
				m.active = (m.active + 1) % len(m.columns)
			}
			return m, nil
		case "shift+tab", "left", "h":
			if len(m.columns) > 0 {
				m.active = (m.active - 1 + len(m.columns)) % len(m.columns)
			}
			return m, nil
		case "r":
			m.loading = true
			return m, loadBoard
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.columns = msg.columns
		if m.active >= len(m.columns) {
			m.active = 0
		}
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m boardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := boardTitleStyle.Render(" opsd Pipeline Board ")
	help := boardHelpStyle.Render("tab/arrows: switch stage | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading tasks...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}
	if len(m.columns) == 0 {
		return fmt.Sprintf("%s\n\n  No pipeline stages configured.\n\n%s", title, help)
	}

	availableWidth := m.width - 2
	colWidth := availableWidth/len(m.columns) - 4
	if colWidth < 16 {
		colWidth = 16
	}

	rendered := make([]string, 0, len(m.columns))
	for i, col := range m.columns {
		style := columnStyle
		if i == m.active {
			style = activeColumnStyle
		}
		rendered = append(rendered, style.Width(colWidth).Render(renderColumn(col, colWidth)))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func renderColumn(col boardColumn, width int) string {
	var b strings.Builder
	b.WriteString(stageHeaderStyle.Render(fmt.Sprintf("%s (%d)", col.stage, len(col.tasks))))
	b.WriteString("\n")

	if len(col.tasks) == 0 {
		b.WriteString("  -")
		return b.String()
	}

	for _, task := range col.tasks {
		title := task.Title
		if len(title) > width-4 && width > 7 {
			title = title[:width-7] + "..."
		}
		b.WriteString(styleForPriority(task.Priority).Render("• " + title))
		b.WriteString("\n")

		if len(task.BlockedBy) > 0 {
			b.WriteString(blockedStyle.Render(fmt.Sprintf("  blocked (%d)", len(task.BlockedBy))))
			b.WriteString("\n")
		} else if gatesAllPass(task) {
			b.WriteString(gateOKStyle.Render("  gates ok"))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func gatesAllPass(task models.Task) bool {
	if len(task.Gates) == 0 {
		return false
	}
	for _, passed := range task.Gates {
		if !passed {
			return false
		}
	}
	return true
}

func styleForPriority(priority models.Priority) lipgloss.Style {
	switch priority {
	case models.PriorityUrgent:
		return priorityUrgent
	case models.PriorityHigh:
		return priorityHigh
	case models.PriorityMedium:
		return priorityMedium
	case models.PriorityLow:
		return priorityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadBoard() tea.Msg {
	result := boardLoadedMsg{}

	if Engine == nil || ConfigMgr == nil {
		result.err = fmt.Errorf("engine not initialized")
		return result
	}

	pipeline, err := ConfigMgr.LoadPipeline()
	if err != nil {
		result.err = fmt.Errorf("loading pipeline config: %w", err)
		return result
	}
	tasks, err := Engine.ListTasks(storage.TaskFilter{})
	if err != nil {
		result.err = fmt.Errorf("loading tasks: %w", err)
		return result
	}

	byStage := make(map[string][]models.Task)
	for _, task := range tasks {
		byStage[task.Stage] = append(byStage[task.Stage], task)
	}
	for _, stage := range pipeline.StageOrder() {
		result.columns = append(result.columns, boardColumn{stage: stage, tasks: byStage[stage]})
	}

	return result
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive pipeline board",
	Long: `Launch an interactive terminal board showing one column per pipeline
stage, with gate and blocking state per task.

Navigate between stages with Tab or the arrow keys, refresh with r,
quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}
		p := tea.NewProgram(newBoardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
