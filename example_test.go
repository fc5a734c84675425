package hetcore_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/hetcore"
	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
)

// ExampleNew_memory runs a graph declared in Go, without a manifest
// directory.
func ExampleNew_memory() {
	// 1. Declare the graph: invert a ramp on the DSP, then copy it on any core.
	loader, err := memory.NewLoader(&domain.GraphManifest{
		Name: "invert",
		Images: []domain.ImageManifest{
			{Name: "in", Size: "16x16", Color: "Y800", Fill: "ramp"},
			{Name: "mid", Size: "16x16", Color: "Y800"},
			{Name: "out", Size: "16x16", Color: "Y800"},
		},
		Sections: []domain.SectionManifest{
			{Order: 0, Nodes: []domain.NodeManifest{{Kernel: "invert", Affinity: "dsp", Operands: []string{"in", "mid"}}}},
			{Order: 1, Nodes: []domain.NodeManifest{{Kernel: "copy", Operands: []string{"mid", "out"}}}},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	// 2. Start the engine with the default cores and the in-memory loader.
	ctx := context.Background()
	eng, err := hetcore.New(ctx, nil, hetcore.WithLoader(loader))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close(ctx)

	// 3. Run it.
	run, err := eng.RunManifest(ctx, "invert")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %d of %d nodes executed\n", run.Graph, run.Executed, run.Nodes)
	// Output:
	// invert: 2 of 2 nodes executed
}
