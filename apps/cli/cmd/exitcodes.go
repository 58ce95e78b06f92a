package cmd

// Exit codes for the schemaprobe CLI
const (
	// ExitSuccess indicates all checks passed
	ExitSuccess = 0

	// ExitCheckFailure indicates one or more checks were falsified
	ExitCheckFailure = 1

	// ExitExecutionError indicates endpoints errored during execution
	ExitExecutionError = 2

	// ExitConfigError indicates a schema or configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
