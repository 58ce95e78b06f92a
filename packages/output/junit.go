package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite groups the test cases of one endpoint
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single check on one endpoint
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure represents a check failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents an execution error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter accumulates the event stream into JUnit XML for CI systems
type JUnitFormatter struct {
	writer      io.Writer
	suites      []JUnitTestSuite
	runningTime time.Duration
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		suites: make([]JUnitTestSuite, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// HandleEvent accumulates events; nothing is written until Flush.
func (f *JUnitFormatter) HandleEvent(ev runner.Event) {
	switch e := ev.(type) {
	case runner.AfterExecution:
		f.suites = append(f.suites, convertSuite(e))
	case runner.Finished:
		f.runningTime = e.RunningTime
	}
}

func convertSuite(e runner.AfterExecution) JUnitTestSuite {
	name := e.Result.Endpoint.Name()
	className := strings.ReplaceAll(name, " ", ".")

	var elapsed time.Duration
	for _, d := range e.Result.Elapsed {
		elapsed += d
	}

	suite := JUnitTestSuite{
		Name: name,
		Time: elapsed.Seconds(),
	}

	for _, check := range e.Result.Checks {
		tc := JUnitTestCase{
			Name:      check.Name,
			ClassName: className,
		}
		if check.Status == runner.StatusFailure {
			tc.Failure = &JUnitFailure{
				Message: check.Message,
				Type:    check.Name,
			}
			suite.Failures++
		}
		suite.Tests++
		suite.TestCases = append(suite.TestCases, tc)
	}

	for _, entry := range e.Result.Errors {
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      "error",
			ClassName: className,
			Error: &JUnitError{
				Message: entry.Err.Error(),
				Type:    "ExecutionError",
			},
		})
		suite.Tests++
		suite.Errors++
	}

	return suite
}

// Flush writes the accumulated XML report
func (f *JUnitFormatter) Flush() error {
	root := JUnitTestSuites{
		Name:      "schemaprobe",
		Time:      f.runningTime.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, suite := range f.suites {
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Errors += suite.Errors
		root.TestSuites = append(root.TestSuites, suite)
	}

	if _, err := fmt.Fprint(f.writer, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(root); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}
