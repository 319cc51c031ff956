package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

func (s StepStatus) done() bool {
	return s == StepComplete || s == StepFailed || s == StepSkipped
}

// Step is one stage of a multi-step device operation
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g. "3 found", "1.2 KB"
}

// Progress tracks and renders a multi-step operation such as discovery
// (browse, then verify) or a bus scan.
type Progress struct {
	Label   string
	Steps   []Step
	Current int
	Percent float64
	bar     progress.Model
}

// NewProgress creates a progress tracker with the given step names
func NewProgress(label string, names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, n := range names {
		steps[i] = Step{Number: i + 1, Name: n}
	}
	p := &Progress{Label: label, Steps: steps}
	p.SetWidth(GetTerminalWidth())
	return p
}

// SetWidth resizes the bar for the terminal width
func (p *Progress) SetWidth(width int) *Progress {
	barWidth := width - 20 // room for percentage and counter
	barWidth = max(20, min(barWidth, 50))
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))
	return p
}

// Total returns the number of steps
func (p *Progress) Total() int {
	return len(p.Steps)
}

// UpdateStep sets a step's status and note. Out of range steps are ignored.
func (p *Progress) UpdateStep(n int, status StepStatus, message string) {
	if n < 1 || n > len(p.Steps) {
		return
	}
	p.Steps[n-1].Status = status
	p.Steps[n-1].Message = message

	if status == StepRunning {
		p.Current = n
		return
	}

	finished := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			finished++
		}
	}
	p.Percent = float64(finished) / float64(len(p.Steps))
}

// Render returns the label, bar and step list
func (p *Progress) Render() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}
	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(
		fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.Current, p.Total()),
	))
	b.WriteString("\n\n")
	for i, s := range p.Steps {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.StepLine(s))
	}
	return b.String()
}

// StepLine renders one step as "[n/total] name   marker  (note)"
func (p *Progress) StepLine(step Step) string {
	var marker string
	var style lipgloss.Style
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	pad := max(1, 40-lipgloss.Width(step.Name))

	line := fmt.Sprintf("  [%d/%d] %s%s%s", step.Number, p.Total(), style.Render(step.Name), strings.Repeat(" ", pad), style.Render(marker))
	if step.Message != "" {
		line += "  " + StepNoteStyle.Render("("+step.Message+")")
	}
	return line
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}

// StepCallback reports progress of step n. name may be empty to keep the
// current name.
type StepCallback func(n int, name string, status StepStatus, message string)
