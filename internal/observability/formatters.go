// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/pipeline"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunResult outputs a human-readable summary of a pipeline run
func (p *Printer) PrintRunResult(result *pipeline.RunResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	status := "FAILED"
	if result.Success {
		status = "OK"
	}
	sb.WriteString(fmt.Sprintf("Status:    %s\n", status))
	sb.WriteString(fmt.Sprintf("Duration:  %d ms\n", result.DurationMs))
	sb.WriteString(fmt.Sprintf("Message:   %s\n", result.Message))
	sb.WriteString(fmt.Sprintf("Collected: %d  Created: %d  Unchanged: %d",
		result.Collected, result.Created, result.Unchanged))
	if result.GatePassed {
		sb.WriteString("\nGate:      passed")
	} else {
		sb.WriteString("\nGate:      skipped, no change in top selection")
	}
	sb.WriteString(fmt.Sprintf("\nQueue:     %d published, %d still pending",
		result.Published, result.Pending))

	p.printBox("Pipeline Run", sb.String())
}

// PrintQueueEntries outputs a table of queue entries
func (p *Printer) PrintQueueEntries(entries []db.QueueEntry) {
	if len(entries) == 0 {
		p.printBox("Publish Queue", "empty")
		return
	}

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s  %-9s retries=%d\n", e.ID.String()[:8], e.Status, e.RetryCount))
		sb.WriteString(fmt.Sprintf("  %s (%s)", e.Title, e.PostType))
		if e.PublishedAt != nil {
			sb.WriteString(fmt.Sprintf("\n  published %s", e.PublishedAt.Format("2006-01-02 15:04")))
		}
	}

	p.printBox("Publish Queue", sb.String())
}
