package main

import "github.com/aretw0/hetcore/pkg/domain"

// demoManifest is run when no manifest is named: a ramp echoed through the
// DSP, inverted wherever it fits and summarized in a histogram.
func demoManifest() *domain.GraphManifest {
	return &domain.GraphManifest{
		Name:        "echo-demo",
		Description: "Echo a 64x64 ramp through the DSP, invert it and histogram the result.",
		Images: []domain.ImageManifest{
			{Name: "frame", Size: "64x64", Color: "Y800", Fill: "ramp"},
			{Name: "echoed", Size: "64x64", Color: "Y800"},
			{Name: "inverted", Size: "64x64", Color: "Y800"},
		},
		Buffers: []domain.BufferManifest{{Name: "hist", Bytes: 1024, ElemSize: 4}},
		Sections: []domain.SectionManifest{
			{Order: 0, Nodes: []domain.NodeManifest{{Kernel: "echo", Affinity: "dsp", Operands: []string{"frame", "echoed"}}}},
			{Order: 1, Nodes: []domain.NodeManifest{{Kernel: "invert", Operands: []string{"echoed", "inverted"}}}},
			{Order: 2, Nodes: []domain.NodeManifest{{Kernel: "histogram8", Operands: []string{"inverted", "hist"}}}},
		},
	}
}
