package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/pkg/domain"
)

// RunReport formats a run as markdown: a summary line, one table row per
// section and the error, if any.
func RunReport(run *domain.RunRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run `%s`\n\n", run.ID)

	outcome := "complete"
	if !run.Complete() {
		outcome = "incomplete"
	}
	fmt.Fprintf(&sb, "Graph **%s**: %d of %d nodes executed in %s (%s).\n\n",
		run.Graph, run.Executed, run.Nodes, run.Duration.Round(time.Microsecond), outcome)

	if len(run.Sections) > 0 {
		sb.WriteString("| Section | Nodes | Executed | Duration | |\n")
		sb.WriteString("|---:|---:|---:|---:|---|\n")
		for _, s := range run.Sections {
			mark := "ok"
			switch {
			case s.Skipped:
				mark = "skipped"
			case s.Executed < s.Nodes:
				mark = "partial"
			}
			fmt.Fprintf(&sb, "| %d | %d | %d | %s | %s |\n", s.Index, s.Nodes, s.Executed, s.Duration.Round(time.Microsecond), mark)
		}
		sb.WriteString("\n")
	}

	if run.Error != "" {
		fmt.Fprintf(&sb, "> **Error:** %s\n", run.Error)
	}
	return sb.String()
}

// CoresReport formats the core inventory as a markdown table.
func CoresReport(cores []scheduler.CoreInfo) string {
	var sb strings.Builder
	sb.WriteString("| Core | Enabled | Priority | Load | State | Queue | Kernels |\n")
	sb.WriteString("|---|---|---:|---|---|---:|---|\n")
	for _, c := range cores {
		load := fmt.Sprintf("%d", c.Load.Current)
		if c.Load.Max > 0 {
			load = fmt.Sprintf("%d/%d", c.Load.Current, c.Load.Max)
		}
		kernels := make([]string, len(c.Kernels))
		for i, k := range c.Kernels {
			kernels[i] = k.String()
		}
		enabled := "no"
		if c.Enabled {
			enabled = "yes"
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %s | %s | %d | %s |\n",
			c.ID, enabled, c.Priority, load, c.State, c.QueueDepth, strings.Join(kernels, ", "))
	}
	return sb.String()
}
