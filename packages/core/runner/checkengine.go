package runner

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/schemaprobe/packages/checks"
	"github.com/abdul-hamid-achik/schemaprobe/packages/httpclient"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// FailureGroup bundles every check that failed against a single interaction.
// Callers classify it as a test failure, never as an error.
type FailureGroup struct {
	Failures []error
}

func (g *FailureGroup) Error() string {
	msgs := make([]string, len(g.Failures))
	for i, err := range g.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d check(s) failed: %s", len(g.Failures), strings.Join(msgs, "; "))
}

// RunChecks executes every check against the interaction. All checks run
// regardless of earlier failures; each outcome is recorded on the result.
// After the checks, the raw status code, a response-error record (the decoded
// body when the status exceeds 204) and the elapsed time are recorded.
func RunChecks(c *schema.Case, list []checks.Check, result *TestResult, resp *httpclient.Response) error {
	var failures []error
	for _, check := range list {
		if err := check.Fn(resp, c); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", check.Name, err))
			result.AddFailure(check.Name, c, err.Error())
		} else {
			result.AddSuccess(check.Name, c)
		}
	}

	result.AddStatusCode(resp.StatusCode)
	if resp.StatusCode > 204 {
		if decoded, err := resp.BodyJSON(); err == nil {
			result.AddResponseError(decoded)
		} else {
			result.AddResponseError(resp.BodyString())
		}
	} else {
		result.AddResponseError("Success")
	}
	result.AddElapsed(resp.Duration)

	if len(failures) > 0 {
		return &FailureGroup{Failures: failures}
	}
	return nil
}
