// Package runner schedules and executes randomized conformance tests
// against the endpoints of a loaded API schema.
//
// It provides functionality for:
//   - Deriving a per-endpoint case generator from the schema
//   - Running cases over the network or against an in-process handler
//   - Applying response checks and collecting results per endpoint
//   - Resolving declared data dependencies between endpoints
//   - Parallel execution with a configurable worker pool
//
// A run is consumed as a stream of typed events: Initialized, a
// BeforeExecution/AfterExecution pair per endpoint, and a final Finished
// carrying the aggregated results.
package runner
