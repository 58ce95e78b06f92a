// Package runner drives case generation, execution and check evaluation for
// every endpoint of a loaded schema, streaming lifecycle events to the caller.
package runner

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/schemaprobe/packages/httpclient"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// Status classifies the outcome of a check or an endpoint run.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailure
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of one assertion against one case.
type CheckResult struct {
	Name    string
	Status  Status
	Example *schema.Case
	Message string
}

// ErrorEntry pairs an execution error with the case that triggered it, when
// one exists.
type ErrorEntry struct {
	Err     error
	Example *schema.Case
}

// Request is the recorded view of a dispatched case.
type Request struct {
	Method  string
	Path    string
	URL     string
	Headers map[string]string
	Cookies map[string]string
	Query   map[string]any
	Body    any
}

// Response is the recorded view of what came back. The body is kept
// base64-encoded so binary payloads survive serialization.
type Response struct {
	URL        string
	StatusCode int
	Headers    map[string]string
	Content    string
	Elapsed    time.Duration
}

// Interaction snapshots one request/response pair for reproducibility,
// including failed calls.
type Interaction struct {
	Request  Request
	Response Response
}

func newInteraction(c *schema.Case, resp *httpclient.Response) Interaction {
	path, _ := c.FormattedPath()
	return Interaction{
		Request: Request{
			Method:  c.Method(),
			Path:    path,
			URL:     resp.URL,
			Headers: c.Headers,
			Cookies: c.Cookies,
			Query:   c.Query,
			Body:    c.Body,
		},
		Response: Response{
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Content:    base64.StdEncoding.EncodeToString(resp.Body),
			Elapsed:    resp.Duration,
		},
	}
}

// TestResult aggregates everything recorded while testing one endpoint. It is
// owned by a single worker until appended to the result set.
type TestResult struct {
	Endpoint       *schema.Endpoint
	Checks         []CheckResult
	Errors         []ErrorEntry
	Interactions   []Interaction
	Logs           []string
	StatusCodes    []int
	ResponseErrors []any
	Elapsed        []time.Duration
	Seed           int64

	errored bool
}

func NewTestResult(endpoint *schema.Endpoint, seed int64) *TestResult {
	return &TestResult{Endpoint: endpoint, Seed: seed}
}

// MarkErrored forces the result into the errored bucket even when no error
// entries were recorded. Needed for unreliable-result detection, which can
// leave zero checks behind.
func (r *TestResult) MarkErrored() { r.errored = true }

func (r *TestResult) IsErrored() bool { return r.errored }

func (r *TestResult) HasErrors() bool { return len(r.Errors) > 0 || r.errored }

func (r *TestResult) HasFailures() bool {
	for _, check := range r.Checks {
		if check.Status == StatusFailure {
			return true
		}
	}
	return false
}

func (r *TestResult) AddSuccess(name string, example *schema.Case) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Status: StatusSuccess, Example: example})
}

func (r *TestResult) AddFailure(name string, example *schema.Case, message string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Status: StatusFailure, Example: example, Message: message})
}

func (r *TestResult) AddError(err error) {
	r.Errors = append(r.Errors, ErrorEntry{Err: err})
}

func (r *TestResult) AddErrorWithExample(err error, example *schema.Case) {
	r.Errors = append(r.Errors, ErrorEntry{Err: err, Example: example})
}

func (r *TestResult) AddStatusCode(code int) {
	r.StatusCodes = append(r.StatusCodes, code)
}

func (r *TestResult) AddResponseError(value any) {
	r.ResponseErrors = append(r.ResponseErrors, value)
}

func (r *TestResult) AddElapsed(d time.Duration) {
	r.Elapsed = append(r.Elapsed, d)
}

func (r *TestResult) StoreInteraction(c *schema.Case, resp *httpclient.Response) {
	r.Interactions = append(r.Interactions, newInteraction(c, resp))
}

// TestResultSet collects per-endpoint results. Append is safe under
// concurrent use; everything else is meant for after the run has finished.
type TestResultSet struct {
	mu        sync.Mutex
	results   []*TestResult
	histogram *hdrhistogram.Histogram
}

func NewTestResultSet() *TestResultSet {
	return &TestResultSet{
		// 1us..60s range at 3 significant digits covers any sane request.
		histogram: hdrhistogram.New(1, 60_000_000, 3),
	}
}

func (s *TestResultSet) Append(result *TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	for _, interaction := range result.Interactions {
		_ = s.histogram.RecordValue(interaction.Response.Elapsed.Microseconds())
	}
}

func (s *TestResultSet) Results() []*TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TestResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *TestResultSet) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results) == 0
}

func (s *TestResultSet) HasFailures() bool {
	for _, result := range s.Results() {
		if result.HasFailures() {
			return true
		}
	}
	return false
}

func (s *TestResultSet) HasErrors() bool {
	for _, result := range s.Results() {
		if result.HasErrors() {
			return true
		}
	}
	return false
}

// PassedCount, FailedCount and ErroredCount partition the results: a result
// is errored when it has errors or was marked errored, failed when it has
// check failures and is not errored, passed otherwise. The three always sum
// to the total.
func (s *TestResultSet) PassedCount() int {
	return s.count(func(r *TestResult) bool { return !r.HasErrors() && !r.IsErrored() && !r.HasFailures() })
}

func (s *TestResultSet) FailedCount() int {
	return s.count(func(r *TestResult) bool { return r.HasFailures() && !r.HasErrors() && !r.IsErrored() })
}

func (s *TestResultSet) ErroredCount() int {
	return s.count(func(r *TestResult) bool { return r.HasErrors() || r.IsErrored() })
}

func (s *TestResultSet) count(predicate func(*TestResult) bool) int {
	n := 0
	for _, result := range s.Results() {
		if predicate(result) {
			n++
		}
	}
	return n
}

// CheckStats aggregates per-check success/failure tallies across the run.
type CheckStats struct {
	Success int
	Failure int
	Total   int
}

func (s *TestResultSet) Stats() map[string]CheckStats {
	stats := make(map[string]CheckStats)
	for _, result := range s.Results() {
		for _, check := range result.Checks {
			entry := stats[check.Name]
			entry.Total++
			if check.Status == StatusFailure {
				entry.Failure++
			} else {
				entry.Success++
			}
			stats[check.Name] = entry
		}
	}
	return stats
}

// LatencyPercentile reads the aggregated case latency histogram.
func (s *TestResultSet) LatencyPercentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.histogram.ValueAtQuantile(p)) * time.Microsecond
}
