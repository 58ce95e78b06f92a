// Package output provides formatters for the execution event stream.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON report
//   - JUnit: JUnit XML format for CI integration
//
// Each formatter consumes runner events through HandleEvent; formats that
// accumulate results expose a Flush method to write the final report.
package output
