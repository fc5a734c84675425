package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport(t *testing.T) {
	run := &domain.RunRecord{
		ID:       "r1",
		Graph:    "edges",
		Nodes:    3,
		Executed: 2,
		Duration: 1500 * time.Microsecond,
		Sections: []domain.SectionResult{
			{Index: 0, Nodes: 1, Executed: 1},
			{Index: 1, Nodes: 2, Executed: 1},
			{Index: 2, Nodes: 1, Skipped: true},
		},
		Error: "core load exceeded",
	}

	md := RunReport(run)
	assert.Contains(t, md, "# Run `r1`")
	assert.Contains(t, md, "2 of 3 nodes executed in 1.5ms (incomplete)")
	assert.Contains(t, md, "| 0 | 1 | 1 | 0s | ok |")
	assert.Contains(t, md, "| 1 | 2 | 1 | 0s | partial |")
	assert.Contains(t, md, "| skipped |")
	assert.Contains(t, md, "> **Error:** core load exceeded")

	run.Error, run.Executed = "", 3
	assert.Contains(t, RunReport(run), "(complete)")
}

func TestCoresReport(t *testing.T) {
	md := CoresReport([]scheduler.CoreInfo{
		{ID: "dsp", Enabled: true, Priority: 2, Load: scheduler.Load{Current: 30, Max: 500}, State: "idle", Kernels: []domain.Kernel{domain.KernelEcho, domain.KernelInvert}},
		{ID: "eve"},
	})
	assert.Contains(t, md, "| dsp | yes | 2 | 30/500 | idle | 0 | echo, invert |")
	assert.Contains(t, md, "| eve | no | 0 | 0 |  | 0 |  |")
}

func TestPrint_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, "# Title\n"))
	assert.Equal(t, "# Title\n", buf.String())
	assert.False(t, IsTerminal(&buf))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.True(t, strings.Contains(buf.String(), "|_| |_|"))
}
