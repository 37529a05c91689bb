// Package engine runs the iterative map-making loop.
//
// A Session owns the state of one run: the private working area and the
// cleanup coordinator. Execute opens a session, hands it to the caller and
// guarantees teardown on every exit path.
//
// The Controller drives the passes. Iteration 1 runs the map-maker on the
// raw input and exports the cleaned time-series data and noise model; the
// Controller claims those files with the tracker and moves the cleaned
// data into the working area. Every later iteration runs on that bundle,
// starting from the previous iteration's map, with a configuration
// document composed from the first-pass document plus the overrides the
// Lifecycle has emitted so far. The last iteration writes the user's
// output. When requested, the Assembler stacks every iteration's map into
// a diagnostics cube.
//
// Failures are returned as *LoopError values classified as invocation,
// input, interrupted or internal failures.
package engine
