/*
Package hetcore runs image-processing kernel graphs across the cores of a heterogeneous SoC.

A host core issues kernel nodes; remote accelerator cores (DSP, SIMCOP, EVE, ...) execute them
through a small RPC protocol. Every call crosses address spaces, so the engine keeps a
translation cache of host buffers mapped into each remote core and flushes or invalidates CPU
caches around each call according to the direction of every operand.

# Concept

A Graph is a list of Sections with an execution order. The scheduler (the "Boss") places each
node on the highest priority core that runs its kernel and has room in its load budget, then
hands consecutive runs of nodes to that core's dispatch worker. The worker stages the nodes in a
shared buffer, translates their image and buffer addresses, keeps caches coherent and invokes the
remote graph manager. The CPU runs whatever no accelerator takes.

# Key Features

  - Idempotent address translation with optional all-or-nothing fan-out to every enabled core.
  - Direction-aware cache maintenance: inputs are flushed, outputs invalidated.
  - Bounded per-core queues with synchronous and asynchronous submission.
  - Pluggable transports: in-process simulated cores, or cores hosted by another engine over HTTP.
  - Run records kept in memory or Redis, graph manifests loaded from a Loam repository.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/hetcore"
		"github.com/aretw0/hetcore/internal/config"
	)

	func main() {
		ctx := context.Background()
		cfg := config.Default()
		cfg.Manifests = "./manifests"

		eng, err := hetcore.New(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close(ctx)

		run, err := eng.RunManifest(ctx, "edges")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d of %d nodes executed\n", run.Executed, run.Nodes)
	}

For more details on the components, see the pkg/ and internal/ directories.
*/
package hetcore
