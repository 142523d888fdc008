package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/geocalc/internal/events"
)

// ProgressPaneModel shows queue counts and, once merged, the result summary.
type ProgressPaneModel struct {
	progress events.QueueProgressEvent
	merge    *events.MergeCompletedEvent
	runErr   error
	finished bool
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates an empty progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles progress, merge and run-finished messages.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.QueueProgressEvent:
		m.progress = msg
	case events.MergeCompletedEvent:
		m.merge = &msg
	case RunFinishedMsg:
		m.finished = true
		m.runErr = msg.Err
	}
	return m, nil
}

// View renders the pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	p := m.progress

	title := StyleTitle.Render("Queue")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:     %d\n", p.Total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(p.Completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(p.Running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(p.Failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(p.Pending)))
	b.WriteString("\n")

	if p.Total > 0 {
		barWidth := min(m.width-14, 40)
		completedWidth := (p.Completed * barWidth) / p.Total
		failedWidth := (p.Failed * barWidth) / p.Total
		runningWidth := (p.Running * barWidth) / p.Total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		fmt.Fprintf(&b, "[%s]  %d/%d\n\n", bar, p.Completed, p.Total)
	}

	if m.merge != nil {
		fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Categories:"), strings.Join(m.merge.Categories, ", "))
		fmt.Fprintf(&b, "%s %d\n", StyleLabel.Render("Direct commands:"), m.merge.DirectCommands)
		fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Order:"), strings.Join(m.merge.TaskOrder, " → "))
	}
	if m.finished {
		if m.runErr != nil {
			b.WriteString(StyleStatusFailed.Render("Run failed: " + m.runErr.Error()))
		} else {
			b.WriteString(StyleStatusComplete.Render("Run complete, press q to print the result"))
		}
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
