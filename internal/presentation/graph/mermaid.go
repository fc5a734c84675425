// Package graph draws graph manifests as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/hetcore/pkg/domain"
)

// RunOverlay colours sections by how a run treated them.
type RunOverlay struct {
	Run *domain.RunRecord
}

// GenerateMermaid produces a Mermaid flowchart from a manifest. Every
// section is a subgraph, nodes are labelled with their kernel and affinity,
// and edges follow data from the node that writes an operand to the later
// nodes that read it. Shapes:
// - Image operand writer: [Rectangle]
// - Buffer writer: [(Database)]
// - No outputs: ((Circle))
func GenerateMermaid(m *domain.GraphManifest, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	// writers maps an operand name to the ids of the nodes writing it
	writers := make(map[string][]string)
	for s, sec := range m.Sections {
		fmt.Fprintf(&sb, "    subgraph s%d[\"section %d (order %d)\"]\n", s, s, sec.Order)
		for n, node := range sec.Nodes {
			id := nodeID(s, n)
			label := node.Kernel
			if node.Affinity != "" {
				label += " @" + node.Affinity
			}
			opener, closer := shape(node)
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", id, opener, sanitizeLabel(label), closer)
		}
		sb.WriteString("    end\n")
	}

	for s, sec := range m.Sections {
		for n, node := range sec.Nodes {
			id := nodeID(s, n)
			for i, name := range node.Operands {
				dir, ok := operandDir(node.Kernel, i)
				if !ok {
					continue
				}
				if dir.Reads() {
					for _, from := range writers[name] {
						fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, sanitizeLabel(name), id)
					}
				}
			}
			for i, name := range node.Operands {
				if dir, ok := operandDir(node.Kernel, i); ok && dir.Writes() {
					writers[name] = append(writers[name], id)
				}
			}
		}
	}

	if overlay != nil && overlay.Run != nil {
		sb.WriteString("\n    %% Run Overlay\n")
		sb.WriteString("    classDef done fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef partial fill:#fff3e0,stroke:#ef6c00,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef skipped fill:#eceff1,stroke:#90a4ae,stroke-dasharray:4,color:#000;\n")
		for _, res := range overlay.Run.Sections {
			if res.Index < 0 || res.Index >= len(m.Sections) {
				continue
			}
			for n := range m.Sections[res.Index].Nodes {
				class := "done"
				switch {
				case res.Skipped:
					class = "skipped"
				case n >= res.Executed:
					class = "partial"
				}
				fmt.Fprintf(&sb, "    class %s %s;\n", nodeID(res.Index, n), class)
			}
		}
	}

	return sb.String()
}

func nodeID(section, node int) string { return fmt.Sprintf("s%d_n%d", section, node) }

func operandDir(kernel string, slot int) (domain.Direction, bool) {
	k, err := domain.ParseKernel(kernel)
	if err != nil {
		return 0, false
	}
	spec, _ := domain.LookupKernel(k)
	op, ok := spec.Slot(slot)
	return op.Dir, ok
}

func shape(node domain.NodeManifest) (string, string) {
	k, err := domain.ParseKernel(node.Kernel)
	if err != nil {
		return "[", "]"
	}
	spec, _ := domain.LookupKernel(k)
	writes := false
	for _, op := range spec.Operands {
		if !op.Dir.Writes() {
			continue
		}
		if op.Kind == domain.KindBuffer {
			return "[(", ")]"
		}
		writes = true
	}
	if !writes {
		return "((", "))"
	}
	return "[", "]"
}

func sanitizeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
