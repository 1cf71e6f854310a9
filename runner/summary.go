package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/reeveci/reeve-matrix/schema"
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true)
	styleChannel = lipgloss.NewStyle().Width(14)
	styleDim     = lipgloss.NewStyle().Faint(true)

	statusStyles = map[schema.Status]lipgloss.Style{
		schema.STATUS_SUCCESS:         lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		schema.STATUS_FAILED:          lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		schema.STATUS_ALLOWED_FAILURE: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		schema.STATUS_SKIPPED:         lipgloss.NewStyle().Faint(true),
	}
)

func renderStatus(status schema.Status) string {
	style, ok := statusStyles[status]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}

// Summary renders a terminal overview of an invocation.
func Summary(report schema.InvocationReport) string {
	var b strings.Builder

	title := report.Name
	if title == "" {
		title = "pipeline"
	}
	duration := report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(&b, "%s %s %s\n", styleTitle.Render(title), renderStatus(report.Status), styleDim.Render(duration.String()))

	for _, run := range report.Runs {
		channel := run.Run.Channel
		if run.Run.AllowFailure {
			channel += "*"
		}
		stages := make([]string, 0, len(run.Stages))
		for _, stage := range run.Stages {
			stages = append(stages, fmt.Sprintf("%s %s", stage.Stage, renderStatus(stage.Status)))
		}
		fmt.Fprintf(&b, "  %s%s  %s\n", styleChannel.Render(channel), renderStatus(run.Status), styleDim.Render(strings.Join(stages, ", ")))

		for _, result := range run.Publish {
			line := fmt.Sprintf("    publish %s %s", result.Action, renderStatus(result.Status))
			if result.Error != "" {
				line += styleDim.Render(" - " + result.Error)
			}
			b.WriteString(line + "\n")
		}
	}

	if hasAllowed(report) {
		b.WriteString(styleDim.Render("  * allowed to fail") + "\n")
	}
	return b.String()
}

func hasAllowed(report schema.InvocationReport) bool {
	for _, run := range report.Runs {
		if run.Run.AllowFailure {
			return true
		}
	}
	return false
}
