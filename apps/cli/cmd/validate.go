package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <schema>",
	Short: "Validate an OpenAPI schema without running tests",
	Long: `Validate the structure of an OpenAPI schema without executing
anything against the API.

Examples:
  schemaprobe validate openapi.json
  schemaprobe validate https://api.example.com/openapi.json`,
	Args: cobra.ExactArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	sch, err := schema.Load(args[0], schema.LoadOptions{ValidateSchema: true})
	if err != nil {
		return fmt.Errorf("invalid schema %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d endpoints)\n", args[0], len(sch.Endpoints()))
	return nil
}
