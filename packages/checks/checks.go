// Package checks holds the built-in response assertions run against every
// executed case.
package checks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/schemaprobe/packages/httpclient"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// Check is one named assertion. Fn returns a non-nil error to signal an
// assertion failure for the given interaction.
type Check struct {
	Name string
	Fn   func(resp *httpclient.Response, c *schema.Case) error
}

// All returns the full built-in catalogue in execution order.
func All() []Check {
	return []Check{
		{Name: "not_a_server_error", Fn: NotAServerError},
		{Name: "status_code_conformance", Fn: StatusCodeConformance},
		{Name: "content_type_conformance", Fn: ContentTypeConformance},
		{Name: "response_schema_conformance", Fn: ResponseSchemaConformance},
	}
}

// Default returns the checks enabled when none are selected explicitly.
func Default() []Check {
	return []Check{{Name: "not_a_server_error", Fn: NotAServerError}}
}

// ByNames resolves a comma-separated selection against the catalogue.
// The special name "all" selects everything.
func ByNames(names []string) ([]Check, error) {
	if len(names) == 0 {
		return Default(), nil
	}
	catalogue := All()
	var selected []Check
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "all" {
			return catalogue, nil
		}
		found := false
		for _, check := range catalogue {
			if check.Name == name {
				selected = append(selected, check)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown check %q", name)
		}
	}
	return selected, nil
}

// NotAServerError fails on any 5xx response.
func NotAServerError(resp *httpclient.Response, _ *schema.Case) error {
	if resp.IsServerError() {
		return fmt.Errorf("received a response with 5xx status code: %d", resp.StatusCode)
	}
	return nil
}

// StatusCodeConformance fails when the status code is not declared in the
// schema. "default" and range keys such as "4XX" count as declarations.
func StatusCodeConformance(resp *httpclient.Response, c *schema.Case) error {
	declared := c.Endpoint.DeclaredStatuses
	if len(declared) == 0 {
		return nil
	}
	got := strconv.Itoa(resp.StatusCode)
	for _, status := range declared {
		if status == "default" || status == got {
			return nil
		}
		if len(status) == 3 && strings.HasSuffix(status, "XX") && status[0] == got[0] {
			return nil
		}
	}
	return fmt.Errorf("received a response with a status code not declared in the schema: %d (declared: %s)",
		resp.StatusCode, strings.Join(declared, ", "))
}

// ContentTypeConformance fails when a JSON body schema is declared for the
// returned status but the response is not JSON.
func ContentTypeConformance(resp *httpclient.Response, c *schema.Case) error {
	if c.Endpoint.Responses == nil {
		return nil
	}
	if _, ok := c.Endpoint.Responses[strconv.Itoa(resp.StatusCode)]; !ok {
		return nil
	}
	if !resp.IsJSON() {
		return fmt.Errorf("declared content type is application/json, received %q", resp.ContentType())
	}
	return nil
}

// ResponseSchemaConformance validates the response body against the declared
// schema for the returned status code.
func ResponseSchemaConformance(resp *httpclient.Response, c *schema.Case) error {
	if c.Endpoint.Responses == nil {
		return nil
	}
	declared, ok := c.Endpoint.Responses[strconv.Itoa(resp.StatusCode)]
	if !ok || declared == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(declared)
	if err != nil {
		return fmt.Errorf("cannot serialize declared response schema: %w", err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(resp.Body),
	)
	if err != nil {
		return fmt.Errorf("response body does not parse as JSON: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("response body does not conform to the declared schema: %s", strings.Join(details, "; "))
	}
	return nil
}
