package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a multi-step device operation
type RunnerConfig struct {
	Title     string            // e.g. "Device Discovery"
	Command   string            // e.g. "esp32ctl scan"
	Params    map[string]string // shown in the header
	StepNames []string
	Output    io.Writer // default os.Stdout
}

// Operation is the work a Runner drives. It reports progress through
// onStep and returns the details for the result box.
type Operation func(ctx context.Context, onStep StepCallback) (map[string]string, error)

// Runner prints header, step progress and result for one operation
type Runner struct {
	config   RunnerConfig
	progress *Progress
	out      io.Writer
	width    int
}

// NewRunner creates a runner
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()
	return &Runner{
		config:   config,
		progress: NewProgress("", config.StepNames...).SetWidth(width),
		out:      config.Output,
		width:    width,
	}
}

// Run executes op and renders its outcome. The returned error is op's.
func (r *Runner) Run(ctx context.Context, op Operation) (map[string]string, error) {
	start := time.Now()

	header := NewHeader(r.config.Title, r.config.Command, r.config.Params).SetWidth(r.width)
	_, _ = fmt.Fprintln(r.out, header.Render())
	_, _ = fmt.Fprintln(r.out)

	details, err := op(ctx, r.onStep)
	elapsed := time.Since(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		res := NewErrorResult(r.config.Title+" failed", err).SetWidth(r.width)
		_, _ = fmt.Fprintln(r.out, res.Render())
		return details, err
	}

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = elapsed.String()
	res := NewSuccessResult(r.config.Title+" complete", details).SetWidth(r.width)
	_, _ = fmt.Fprintln(r.out, res.Render())
	return details, nil
}

func (r *Runner) onStep(n int, name string, status StepStatus, message string) {
	if n < 1 || n > r.progress.Total() {
		return
	}
	if name != "" {
		r.progress.Steps[n-1].Name = name
	}
	r.progress.UpdateStep(n, status, message)

	line := r.progress.StepLine(r.progress.Steps[n-1])
	if status.done() {
		_, _ = fmt.Fprintln(r.out, line)
	} else {
		// overwritten when the step finishes
		_, _ = fmt.Fprint(r.out, line+"\r")
	}
}
