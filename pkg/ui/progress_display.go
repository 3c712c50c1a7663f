package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay renders a single-line progress bar for an extraction run
type ProgressDisplay struct {
	mu            sync.Mutex
	out           io.Writer
	width         int
	total         int
	done          int
	found         int
	notFound      int
	errors        int
	shipments     int
	currentAmount string
	status        string
	startTime     time.Time
	isDebug       bool
}

// NewProgressDisplay creates a new progress display
func NewProgressDisplay(out io.Writer, total int, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		width:     Width(120),
		total:     total,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// StartAmount marks the start of a new amount
func (p *ProgressDisplay) StartAmount(amount string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentAmount = amount
	p.status = ""
	if !p.isDebug {
		p.printProgress()
	}
}

// Status updates the status shown after the current amount
func (p *ProgressDisplay) Status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = msg
	if p.isDebug {
		fmt.Fprintf(p.out, "%s %s\n", Magenta("→"), msg)
		return
	}
	p.printProgress()
}

// CompleteAmount marks an amount as finalized
func (p *ProgressDisplay) CompleteAmount(amount, invoiceNumber string, shipments int, found bool, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.shipments += shipments
	switch {
	case failed:
		p.errors++
	case found:
		p.found++
	default:
		p.notFound++
	}
	p.currentAmount = ""
	p.status = ""

	if p.isDebug {
		mark := Green("✓")
		if failed {
			mark = Red("✗")
		} else if !found {
			mark = Yellow("?")
		}
		fmt.Fprintf(p.out, "%s $%s • %s • %d shipments\n", mark, amount, invoiceNumber, shipments)
		return
	}
	p.printProgress()
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress() {
	bar := progressBar(p.done, p.total, 20)

	line := fmt.Sprintf("%s %d/%d • %s", bar, p.done, p.total, p.formatDuration(time.Since(p.startTime)))
	if p.currentAmount != "" {
		line += fmt.Sprintf(" • %s", Cyan("$"+p.currentAmount))
	}
	if p.status != "" {
		line += fmt.Sprintf(" • %s", Dim(p.status))
	}
	if p.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.errors)))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", p.width-1), line)
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n\n%s Processed %d amounts in %s\n",
		Green("✓"),
		p.done,
		p.formatDuration(time.Since(p.startTime)),
	)
	fmt.Fprintf(p.out, "  %s %d found • %d not found • %d errors • %d shipments\n",
		Dim("•"), p.found, p.notFound, p.errors, p.shipments)
	if path != "" {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("•"), path)
	}
}

// Fail prints a terminal failure line
func (p *ProgressDisplay) Fail(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n\n%s %s\n", Red("✗"), msg)
}

// Percent returns completed amounts as a percentage of the total
func (p *ProgressDisplay) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Percent(p.done, p.total)
}

// Percent returns done/total as a percentage, 100 for an empty total
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}

func progressBar(done, total, width int) string {
	filled := int(Percent(done, total) / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("━", filled) + strings.Repeat("─", width-filled) + "]"
}

// formatDuration formats a duration in a human-readable way
func (p *ProgressDisplay) formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
