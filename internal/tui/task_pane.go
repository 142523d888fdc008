package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/geocalc/internal/events"
)

// Task display statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDirect    = "direct"
)

// TaskState is what the pane knows about one task.
type TaskState struct {
	ID          string
	Type        string
	RoutingKey  string
	Description string
	Status      string
	Result      map[string]any
	Err         error
	Command     string // GeoGebra command of a short-circuited task
	Duration    time.Duration
}

// TaskPaneModel lists tasks as they run and shows the selected task's detail.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // first-seen order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles key and task event messages.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.task(msg.ID)
		task.Type = msg.Type
		task.RoutingKey = msg.RoutingKey
		task.Description = msg.Description
		task.Status = StatusRunning
		// Follow the running task
		m.selectedIdx = m.index(msg.ID)
		m.updateViewportContent()

	case events.TaskCompletedEvent:
		task := m.task(msg.ID)
		task.Status = StatusCompleted
		task.Result = msg.Result
		task.Duration = msg.Duration
		m.refresh(msg.ID)

	case events.TaskFailedEvent:
		task := m.task(msg.ID)
		task.Status = StatusFailed
		task.Err = msg.Err
		task.Duration = msg.Duration
		m.refresh(msg.ID)

	case events.TaskShortCircuitedEvent:
		task := m.task(msg.ID)
		task.Status = StatusDirect
		task.Command = msg.Command
		m.refresh(msg.ID)
	}

	return m, cmd
}

// task returns the state for id, registering it on first sight.
func (m *TaskPaneModel) task(id string) *TaskState {
	if task, ok := m.tasks[id]; ok {
		return task
	}
	task := &TaskState{ID: id}
	m.tasks[id] = task
	m.order = append(m.order, id)
	if len(m.order) == 1 {
		m.selectedIdx = 0
	}
	return task
}

func (m TaskPaneModel) index(id string) int {
	for i, taskID := range m.order {
		if taskID == id {
			return i
		}
	}
	return 0
}

func (m *TaskPaneModel) refresh(id string) {
	if m.SelectedTaskID() == id {
		m.updateViewportContent()
	}
}

// View renders the pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	detailWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		name := id
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(m.tasks[id].Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusDirect:
		return StyleStatusDirect.Render("→")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedTaskID returns the ID of the selected task, or "".
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Task returns the state of a task the pane has seen.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	task, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(renderDetail(task))
	m.viewport.GotoTop()
}

func renderDetail(task *TaskState) string {
	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render(label+":"), value)
		}
	}

	field("Task", task.ID)
	field("Type", task.Type)
	field("Agent", task.RoutingKey)
	field("Status", task.Status)
	field("Description", task.Description)
	if task.Duration > 0 {
		field("Duration", task.Duration.Round(time.Millisecond).String())
	}
	field("GeoGebra", task.Command)
	if task.Err != nil {
		field("Error", task.Err.Error())
	}
	if len(task.Result) > 0 {
		data, err := json.MarshalIndent(task.Result, "", "  ")
		if err != nil {
			field("Result", err.Error())
		} else {
			b.WriteString("\n")
			b.WriteString(StyleLabel.Render("Result:"))
			b.WriteString("\n")
			b.Write(data)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *TaskPaneModel) resizeViewport() {
	w := m.width - 28 - 4
	h := m.height - 4 // borders
	m.viewport.Width = max(w, 10)
	m.viewport.Height = max(h, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
