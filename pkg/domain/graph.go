package domain

import (
	"fmt"
	"sync"
	"time"
)

// Perf accumulates timing for repeated runs of a section or graph.
type Perf struct {
	mu    sync.Mutex
	Runs  int
	Last  time.Duration
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Record adds one run of duration d.
func (p *Perf) Record(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Runs++
	p.Last = d
	p.Total += d
	if p.Min == 0 || d < p.Min {
		p.Min = d
	}
	if d > p.Max {
		p.Max = d
	}
}

// Avg is the mean run duration.
func (p *Perf) Avg() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Runs == 0 {
		return 0
	}
	return p.Total / time.Duration(p.Runs)
}

// Snapshot copies the counters.
func (p *Perf) Snapshot() PerfSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PerfSnapshot{Runs: p.Runs, Last: p.Last, Total: p.Total, Min: p.Min, Max: p.Max}
}

// PerfSnapshot is an immutable copy of Perf.
type PerfSnapshot struct {
	Runs  int           `json:"runs"`
	Last  time.Duration `json:"last"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Section is an ordered run of nodes processed together.
type Section struct {
	Nodes []KernelNode
	// CoreLoad is the budget this section charges each core while it runs.
	CoreLoad [NumCores]uint32
	Perf     Perf
	Skip     bool
}

// Graph is a set of sections with an execution order. Sections sharing an
// order value may run in parallel.
type Graph struct {
	Name      string
	Sections  []*Section
	Order     []int
	TotalPerf Perf
	Verified  bool
}

// NewGraph builds a serial graph: each section gets its own order slot.
func NewGraph(name string, sections ...*Section) *Graph {
	order := make([]int, len(sections))
	for i := range order {
		order[i] = i
	}
	return &Graph{Name: name, Sections: sections, Order: order}
}

// Check enforces the structural invariants of g.
func (g *Graph) Check() error {
	if len(g.Order) != len(g.Sections) {
		return fmt.Errorf("%w: graph %q has %d sections but %d order entries",
			ErrValidation, g.Name, len(g.Sections), len(g.Order))
	}
	for i, s := range g.Sections {
		if s == nil {
			return fmt.Errorf("%w: graph %q section %d is nil", ErrValidation, g.Name, i)
		}
		if g.Order[i] < 0 {
			return fmt.Errorf("%w: graph %q section %d has negative order", ErrValidation, g.Name, i)
		}
	}
	return nil
}

// NumNodes counts the nodes that would be dispatched.
func (g *Graph) NumNodes() int {
	n := 0
	for _, s := range g.Sections {
		if !s.Skip {
			n += len(s.Nodes)
		}
	}
	return n
}
