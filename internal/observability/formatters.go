// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/mkobayashi/screenflow/internal/flow"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
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

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintFlowResult outputs a human-readable summary of one processed turn.
func (p *Printer) PrintFlowResult(fr *flow.FlowResult) {
	if fr == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Action:   %s\n", fr.Action))
	if fr.Node != "" {
		sb.WriteString(fmt.Sprintf("Node:     %s\n", fr.Node))
	}
	if fr.Reason != "" {
		reason := fr.Reason
		if len(reason) > 45 {
			reason = reason[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", reason))
	}
	sb.WriteString(fmt.Sprintf("Elapsed:  %s\n", fr.Elapsed.Round(fr.Elapsed/100+1)))

	if len(fr.Messages) > 0 {
		sb.WriteString("\nOutbound:\n")
		for _, msg := range fr.Messages {
			if len(msg) > 50 {
				msg = msg[:47] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • %s\n", msg))
		}
	}

	p.printBox("TURN RESULT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPath outputs the nodes visited during a run, in execution order.
// Speculative branches whose output was discarded still appear.
func (p *Printer) PrintPath(path []flow.NodeName) {
	if len(path) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Visited %d nodes:\n\n", len(path)))
	for i, name := range path {
		sb.WriteString(fmt.Sprintf("%2d. %s\n", i+1, name))
	}

	p.printBox("EXECUTION PATH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTranscript outputs the most recent history entries.
func (p *Printer) PrintTranscript(history []flow.Message) {
	if len(history) == 0 {
		return
	}

	var sb strings.Builder
	msgs := history
	if len(msgs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... %d earlier messages\n\n", len(msgs)-maxItemsToShow))
		msgs = msgs[len(msgs)-maxItemsToShow:]
	}
	for _, m := range msgs {
		role := "Recruiter"
		if m.Sender == flow.SenderCandidate {
			role = "Candidate"
		}
		content := m.Content
		if len(content) > 42 {
			content = content[:39] + "..."
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", role, content))
	}

	p.printBox("TRANSCRIPT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintNodeResult outputs one node's outcome, including fallback provenance.
func (p *Printer) PrintNodeResult(r *flow.NodeResult) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Node:     %s\n", r.Node))
	sb.WriteString(fmt.Sprintf("Action:   %s\n", r.Action))
	if len(r.NextNodes) > 0 {
		next := make([]string, len(r.NextNodes))
		for i, n := range r.NextNodes {
			next[i] = string(n)
		}
		sb.WriteString(fmt.Sprintf("Next:     %s\n", strings.Join(next, ", ")))
	}
	if r.Fallback {
		sb.WriteString("Fallback: yes\n")
		if r.FallbackReason != "" {
			reason := r.FallbackReason
			if len(reason) > 42 {
				reason = reason[:39] + "..."
			}
			sb.WriteString(fmt.Sprintf("Cause:    %s\n", reason))
		}
	}
	sb.WriteString(fmt.Sprintf("Elapsed:  %.0fms", r.ElapsedMS))

	p.printBox("NODE RESULT", sb.String())
}
