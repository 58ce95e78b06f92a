package cmd

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <schema>",
	Short: "List the endpoints a schema declares",
	Long: `List all testable endpoints in an OpenAPI schema without
executing anything.

Examples:
  schemaprobe list openapi.json
  schemaprobe list openapi.yaml --tag users
  schemaprobe list https://api.example.com/openapi.json`,
	Args: cobra.ExactArgs(1),
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVarP(&endpointFlag, "endpoint", "E", "", "Only list paths matching this pattern")
	listCmd.Flags().StringVarP(&methodFlag, "method", "M", "", "Only list operations with this HTTP method")
	listCmd.Flags().StringVarP(&tagFlag, "tag", "T", "", "Only list operations with this tag")
}

func listCommand(cmd *cobra.Command, args []string) error {
	sch, err := schema.Load(args[0], schema.LoadOptions{
		Endpoint: endpointFlag,
		Method:   methodFlag,
		Tag:      tagFlag,
	})
	if err != nil {
		return err
	}

	endpoints := sch.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints matched")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", args[0])
	for _, endpoint := range endpoints {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", endpoint.Name())
		if endpoint.OperationID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "    operationId: %s\n", endpoint.OperationID)
		}
		if len(endpoint.Tags) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "    tags: %s\n", strings.Join(endpoint.Tags, ", "))
		}
	}
	return nil
}
