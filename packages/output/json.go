package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
)

// JSONOutput represents the complete JSON report structure
type JSONOutput struct {
	Summary   JSONSummary    `json:"summary"`
	Endpoints []JSONEndpoint `json:"endpoints"`
	Duration  float64        `json:"duration"`
	Time      string         `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// JSONEndpoint represents the outcome for a single endpoint
type JSONEndpoint struct {
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Seed         int64             `json:"seed,omitempty"`
	Checks       []JSONCheck       `json:"checks,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
	Interactions []JSONInteraction `json:"interactions,omitempty"`
	Logs         []string          `json:"logs,omitempty"`
}

// JSONCheck represents a single check result
type JSONCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// JSONInteraction represents a recorded request/response pair
type JSONInteraction struct {
	Method     string  `json:"method"`
	Path       string  `json:"path"`
	StatusCode int     `json:"statusCode"`
	Duration   float64 `json:"duration"`
}

// JSONFormatter accumulates the event stream into a JSON report
type JSONFormatter struct {
	writer      io.Writer
	endpoints   []JSONEndpoint
	results     *runner.TestResultSet
	runningTime time.Duration
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:    os.Stdout,
		endpoints: make([]JSONEndpoint, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// HandleEvent accumulates events; nothing is written until Flush.
func (f *JSONFormatter) HandleEvent(ev runner.Event) {
	switch e := ev.(type) {
	case runner.AfterExecution:
		f.endpoints = append(f.endpoints, convertResult(e))
	case runner.Finished:
		f.results = e.Results
		f.runningTime = e.RunningTime
	}
}

func convertResult(e runner.AfterExecution) JSONEndpoint {
	out := JSONEndpoint{
		Name:   e.Result.Endpoint.Name(),
		Status: e.Status.String(),
		Seed:   e.Result.Seed,
		Logs:   e.CapturedOutput,
	}

	for _, check := range e.Result.Checks {
		out.Checks = append(out.Checks, JSONCheck{
			Name:    check.Name,
			Status:  check.Status.String(),
			Message: check.Message,
		})
	}

	for _, entry := range e.Result.Errors {
		out.Errors = append(out.Errors, entry.Err.Error())
	}

	for _, interaction := range e.Result.Interactions {
		out.Interactions = append(out.Interactions, JSONInteraction{
			Method:     interaction.Request.Method,
			Path:       interaction.Request.Path,
			StatusCode: interaction.Response.StatusCode,
			Duration:   float64(interaction.Response.Elapsed.Milliseconds()),
		})
	}

	return out
}

// Flush writes the accumulated JSON report
func (f *JSONFormatter) Flush() error {
	summary := JSONSummary{Total: len(f.endpoints)}
	if f.results != nil {
		summary.Passed = f.results.PassedCount()
		summary.Failed = f.results.FailedCount()
		summary.Errored = f.results.ErroredCount()
		summary.Total = summary.Passed + summary.Failed + summary.Errored
	}

	output := JSONOutput{
		Summary:   summary,
		Endpoints: f.endpoints,
		Duration:  float64(f.runningTime.Milliseconds()),
		Time:      time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
