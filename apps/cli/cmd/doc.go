// Package cmd implements the schemaprobe CLI commands using Cobra.
//
// Available commands:
//   - run: Generate and execute conformance tests against a schema
//   - validate: Check schema structure without executing
//   - list: Display the endpoints a schema declares
//   - history: Show summaries of past runs recorded with --history
//   - version: Show schemaprobe version information
//
// The CLI supports flags for endpoint filtering, output formatting,
// concurrent execution, and watch mode for development workflows.
package cmd
