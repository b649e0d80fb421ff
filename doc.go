// Package fftsplus lowers fused subgraphs into FFTS+ task descriptors.
//
// An FFTS+ task is a fixed array of 128-byte hardware contexts (compute
// kernels, AICPU operators, data movement, control flow and synchronization)
// plus the argument table the contexts read their addresses from. The engine
// takes a description of each context, encodes its struct, collects its
// addresses into the table and lays everything out in one contiguous,
// cache-aligned descriptor buffer that the hardware scheduler can consume.
//
// # Architecture Overview
//
// A build runs through a fixed lifecycle:
//
//   - Init: size the argument table, tiling span and AICPU blob
//   - Build: lower every context, appending its addresses in declaration order
//   - Finalize: merge the table (normal, then Level1, then AICPU entries),
//     plan the layout and write the descriptor
//   - Distribute: hand the descriptor to the scheduler
//
// Addresses that are not known at build time stay logical. Every logical
// address produces a refresh instruction, so a distributed descriptor can be
// rebound to new base addresses with UpdateHostArgs without lowering again.
//
// # Basic Usage
//
//	// Lower a task description
//	fftsc -kernels add=0x1000:2 -bases featuremap=0x10000 -o out/ task.json
//
//	// Or from Go
//	task := runtime.NewTask(desc, registry, nil, runtime.DefaultTaskOptions())
//	if err := runtime.BuildAll(ctx, task); err != nil {
//	    log.Fatal(err)
//	}
//	err = task.UpdateHostArgs(core.Bases{core.MemFeatureMap: newBase})
//
// # Package Structure
//
//   - core: Layout planning, alignment, field encoding and the error taxonomy
//   - model: Context descriptions and the JSON task format
//   - args: The two-phase argument table and its Level1 / AICPU patch trackers
//   - kernels: Kernel handle registry
//   - compiler: Per-kind context lowering and args-format parsing
//   - runtime: Task state machine, descriptor arena and address refresh
//   - cmd: Command-line tool (fftsc)
package fftsplus
