package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// HandleEvent renders one event from the execution stream. It is meant to be
// called for every event, in order, from a single goroutine.
func (f *ConsoleFormatter) HandleEvent(ev runner.Event) {
	switch e := ev.(type) {
	case runner.Initialized:
		f.handleInitialized(e)
	case runner.BeforeExecution:
		if f.verbose {
			fmt.Fprintf(f.writer, "  %s %s\n", color.CyanString("·"), e.Endpoint.Name())
		}
	case runner.AfterExecution:
		f.handleAfterExecution(e)
	case runner.Interrupted:
		fmt.Fprintf(f.writer, "\n%s\n", color.YellowString("Run interrupted"))
	case runner.InternalError:
		f.FormatError(e.Err)
	case runner.Finished:
		f.handleFinished(e)
	}
}

func (f *ConsoleFormatter) handleInitialized(e runner.Initialized) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "\n%s\n\n", bold(fmt.Sprintf("Collected %d endpoints", e.ScheduledCount)))
}

func (f *ConsoleFormatter) handleAfterExecution(e runner.AfterExecution) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	var symbol string
	switch e.Status {
	case runner.StatusSuccess:
		symbol = green("✓")
	case runner.StatusFailure:
		symbol = red("✗")
	default:
		symbol = yellow("E")
	}
	fmt.Fprintf(f.writer, "  %s %s\n", symbol, e.Result.Endpoint.Name())

	for _, check := range e.Result.Checks {
		if check.Status != runner.StatusFailure {
			continue
		}
		fmt.Fprintf(f.writer, "    %s %s\n", red("→"), check.Name)
		if check.Message != "" {
			fmt.Fprintf(f.writer, "      %s\n", check.Message)
		}
		if check.Example != nil {
			if path, err := check.Example.FormattedPath(); err == nil {
				fmt.Fprintf(f.writer, "      Case: %s %s\n", check.Example.Method(), path)
			}
			if check.Example.Body != nil {
				fmt.Fprintf(f.writer, "      Body: %s\n", formatValue(check.Example.Body, 100))
			}
		}
	}

	for _, entry := range e.Result.Errors {
		fmt.Fprintf(f.writer, "    %s %v\n", yellow("!"), entry.Err)
	}

	if f.verbose {
		for _, line := range e.CapturedOutput {
			fmt.Fprintf(f.writer, "    %s\n", line)
		}
	}
}

func (f *ConsoleFormatter) handleFinished(e runner.Finished) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	stats := e.Results.Stats()
	if len(stats) > 0 {
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(f.writer, "\nChecks:\n")
		for _, name := range names {
			entry := stats[name]
			line := fmt.Sprintf("  %-32s %d / %d passed", name, entry.Success, entry.Total)
			if entry.Failure > 0 {
				fmt.Fprintf(f.writer, "%s\n", red(line))
			} else {
				fmt.Fprintf(f.writer, "%s\n", green(line))
			}
		}
	}

	passed := e.Results.PassedCount()
	failed := e.Results.FailedCount()
	errored := e.Results.ErroredCount()

	fmt.Fprintf(f.writer, "\nEndpoints: ")
	if passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	if errored > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d errored", errored)))
	}
	fmt.Fprintf(f.writer, "%d total\n", passed+failed+errored)
	fmt.Fprintf(f.writer, "Time:  %dms", e.RunningTime.Milliseconds())
	if !e.Results.IsEmpty() {
		fmt.Fprintf(f.writer, " (p50 %dms, p99 %dms)",
			e.Results.LatencyPercentile(50).Milliseconds(),
			e.Results.LatencyPercentile(99).Milliseconds())
	}
	fmt.Fprintf(f.writer, "\n\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("schemaprobe"), version)
}
