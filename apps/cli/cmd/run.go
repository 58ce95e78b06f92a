package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/checks"
	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
	"github.com/abdul-hamid-achik/schemaprobe/packages/history"
	"github.com/abdul-hamid-achik/schemaprobe/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <schema>",
	Short: "Run conformance tests against an API schema",
	Long: `Run property-based conformance tests against the endpoints of an
OpenAPI schema. The schema may be a local file or a URL.

Examples:
  schemaprobe run openapi.json --base-url http://localhost:8080
  schemaprobe run https://api.example.com/openapi.json --checks all
  schemaprobe run openapi.yaml --endpoint /users --method GET
  schemaprobe run openapi.json --workers 4 --exit-first
  schemaprobe run openapi.json --deps deps.yaml --history runs.db`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	baseURLFlag        string
	checksFlag         string
	workersFlag        int
	seedFlag           int64
	derandomizeFlag    bool
	exitFirstFlag      bool
	maxExamplesFlag    int
	negativeFlag       bool
	endpointFlag       string
	methodFlag         string
	tagFlag            string
	validateSchemaFlag bool

	authFlag     string
	authTypeFlag string
	headerFlags  []string
	timeoutFlag  int
	rateFlag     float64

	depsFlag    string
	historyFlag string

	verboseFlag    bool
	noColorFlag    bool
	outputFlag     string
	outputFileFlag string
	watchFlag      bool
)

func init() {
	// Target flags
	runCmd.Flags().StringVarP(&baseURLFlag, "base-url", "b", getEnvString("SCHEMAPROBE_BASE_URL", ""), "Base URL of the API under test (env: SCHEMAPROBE_BASE_URL)")
	runCmd.Flags().StringVarP(&authFlag, "auth", "a", getEnvString("SCHEMAPROBE_AUTH", ""), "Credentials as user:password (env: SCHEMAPROBE_AUTH)")
	runCmd.Flags().StringVar(&authTypeFlag, "auth-type", getEnvString("SCHEMAPROBE_AUTH_TYPE", "basic"), "Authentication mechanism: basic, digest (env: SCHEMAPROBE_AUTH_TYPE)")
	runCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Custom header for every request, as \"Name: value\" (repeatable)")
	runCmd.Flags().IntVar(&timeoutFlag, "request-timeout", getEnvInt("SCHEMAPROBE_REQUEST_TIMEOUT", 0), "Per-request timeout in milliseconds (env: SCHEMAPROBE_REQUEST_TIMEOUT)")
	runCmd.Flags().Float64Var(&rateFlag, "rate-limit", 0, "Maximum requests per second (0 = unlimited)")

	// Selection flags
	runCmd.Flags().StringVarP(&endpointFlag, "endpoint", "E", "", "Only test paths matching this pattern")
	runCmd.Flags().StringVarP(&methodFlag, "method", "M", "", "Only test operations with this HTTP method")
	runCmd.Flags().StringVarP(&tagFlag, "tag", "T", "", "Only test operations with this tag")
	runCmd.Flags().BoolVar(&validateSchemaFlag, "validate-schema", getEnvBool("SCHEMAPROBE_VALIDATE_SCHEMA", true), "Reject structurally invalid schemas (env: SCHEMAPROBE_VALIDATE_SCHEMA)")

	// Execution flags
	runCmd.Flags().StringVarP(&checksFlag, "checks", "c", getEnvString("SCHEMAPROBE_CHECKS", ""), "Comma-separated checks to run, or \"all\" (env: SCHEMAPROBE_CHECKS)")
	runCmd.Flags().IntVar(&workersFlag, "workers", getEnvInt("SCHEMAPROBE_WORKERS", 1), "Number of concurrent endpoint workers (env: SCHEMAPROBE_WORKERS)")
	runCmd.Flags().Int64Var(&seedFlag, "seed", 0, "Random seed for case generation (0 = derived from the clock)")
	runCmd.Flags().BoolVar(&derandomizeFlag, "derandomize", false, "Use a fixed seed for deterministic case generation")
	runCmd.Flags().BoolVarP(&exitFirstFlag, "exit-first", "x", false, "Stop the run on the first failure or error")
	runCmd.Flags().IntVar(&maxExamplesFlag, "max-examples", getEnvInt("SCHEMAPROBE_MAX_EXAMPLES", 0), "Generated cases per endpoint (env: SCHEMAPROBE_MAX_EXAMPLES)")
	runCmd.Flags().BoolVar(&negativeFlag, "negative", false, "Generate schema-violating cases instead of valid ones")
	runCmd.Flags().StringVar(&depsFlag, "deps", getEnvString("SCHEMAPROBE_DEPS", ""), "Path to a YAML dependency map for inter-endpoint data flow (env: SCHEMAPROBE_DEPS)")
	runCmd.Flags().StringVar(&historyFlag, "history", getEnvString("SCHEMAPROBE_HISTORY", ""), "Path to a SQLite file for recording run history (env: SCHEMAPROBE_HISTORY)")

	// Output flags
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output including captured endpoint logs")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("SCHEMAPROBE_NO_COLOR", false), "Disable colored output (env: SCHEMAPROBE_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("SCHEMAPROBE_OUTPUT", "console"), "Output format: console, json, junit (env: SCHEMAPROBE_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("SCHEMAPROBE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: SCHEMAPROBE_OUTPUT_FILE)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch a local schema file for changes and re-run")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Formatter is implemented by all event stream formatters
type Formatter interface {
	HandleEvent(ev runner.Event)
}

// Flushable is implemented by formatters that accumulate before writing
type Flushable interface {
	Flush() error
}

func runCommand(cmd *cobra.Command, args []string) error {
	schemaLocation := args[0]

	cfg, err := buildRunConfig(schemaLocation)
	if err != nil {
		return err
	}

	var outWriter *os.File
	if outputFileFlag != "" {
		outWriter, err = os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer outWriter.Close()
	}

	var store *history.Store
	if historyFlag != "" {
		store, err = history.Open(historyFlag)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping gracefully...")
		cancel()
	}()

	runOnce := func() (*runner.TestResultSet, error) {
		formatter := newFormatter(outWriter)
		if console, ok := formatter.(*output.ConsoleFormatter); ok {
			console.FormatHeader(version)
		}

		startedAt := time.Now()
		var results *runner.TestResultSet
		var runningTime time.Duration
		var internalErr error

		for ev := range runner.Execute(ctx, *cfg) {
			formatter.HandleEvent(ev)
			switch e := ev.(type) {
			case runner.Finished:
				results = e.Results
				runningTime = e.RunningTime
			case runner.InternalError:
				internalErr = e.Err
			}
		}

		if flushable, ok := formatter.(Flushable); ok {
			if err := flushable.Flush(); err != nil {
				return nil, fmt.Errorf("error writing output: %w", err)
			}
		}
		if internalErr != nil {
			return nil, internalErr
		}

		if store != nil && results != nil {
			if _, err := store.RecordRun(context.Background(), schemaLocation, startedAt, runningTime, cfg.Seed, results); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to record run history: %v\n", err)
			}
		}
		return results, nil
	}

	results, err := runOnce()

	if !watchFlag {
		if err != nil {
			return err
		}
		os.Exit(exitCode(results))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return watchSchema(cmd, ctx, schemaLocation, runOnce)
}

func buildRunConfig(schemaLocation string) (*runner.Config, error) {
	cfg := &runner.Config{
		SchemaLocation: schemaLocation,
		BaseURL:        baseURLFlag,
		Workers:        workersFlag,
		Seed:           seedFlag,
		Derandomize:    derandomizeFlag,
		ExitFirst:      exitFirstFlag,
		MaxExamples:    maxExamplesFlag,
		RequestTimeout: timeoutFlag,
		RateLimit:      rateFlag,
		EndpointFilter: endpointFlag,
		MethodFilter:   methodFlag,
		TagFilter:      tagFlag,
		ValidateSchema: validateSchemaFlag,
	}

	if negativeFlag {
		cfg.Mode = generator.ModeInvalid
	}

	if checksFlag != "" {
		names := strings.Split(checksFlag, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		selected, err := checks.ByNames(names)
		if err != nil {
			return nil, err
		}
		cfg.Checks = selected
	}

	if authFlag != "" {
		user, pass, ok := strings.Cut(authFlag, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --auth value: expected user:password")
		}
		cfg.Auth = &runner.AuthConfig{User: user, Pass: pass, Type: authTypeFlag}
	}

	if len(headerFlags) > 0 {
		headers := make(map[string]string, len(headerFlags))
		for _, h := range headerFlags {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid --header value %q: expected \"Name: value\"", h)
			}
			headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
		cfg.Headers = headers
	}

	if depsFlag != "" {
		deps, err := runner.LoadDependencyMap(depsFlag)
		if err != nil {
			return nil, err
		}
		cfg.Dependencies = deps
	}

	return cfg, nil
}

func newFormatter(outWriter *os.File) Formatter {
	switch strings.ToLower(outputFlag) {
	case "json":
		opts := []output.JSONOption{}
		if outWriter != nil {
			opts = append(opts, output.JSONWithWriter(outWriter))
		}
		return output.NewJSONFormatter(opts...)
	case "junit":
		opts := []output.JUnitOption{}
		if outWriter != nil {
			opts = append(opts, output.JUnitWithWriter(outWriter))
		}
		return output.NewJUnitFormatter(opts...)
	default: // "console"
		consoleOpts := []output.ConsoleOption{
			output.WithVerbose(verboseFlag),
			output.WithNoColor(noColorFlag),
		}
		if outWriter != nil {
			consoleOpts = append(consoleOpts, output.WithWriter(outWriter))
		}
		return output.NewConsoleFormatter(consoleOpts...)
	}
}

func exitCode(results *runner.TestResultSet) int {
	if results == nil {
		return ExitConfigError
	}
	if results.HasErrors() {
		return ExitExecutionError
	}
	if results.HasFailures() {
		return ExitCheckFailure
	}
	return ExitSuccess
}

// watchSchema re-runs the suite whenever a local schema file changes.
func watchSchema(cmd *cobra.Command, ctx context.Context, schemaLocation string, runOnce func() (*runner.TestResultSet, error)) error {
	if strings.HasPrefix(schemaLocation, "http://") || strings.HasPrefix(schemaLocation, "https://") {
		return fmt.Errorf("--watch requires a local schema file, got a URL")
	}
	if _, err := os.Stat(schemaLocation); err != nil {
		return fmt.Errorf("cannot watch %s: %w", schemaLocation, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the containing directory: editors often replace the file on
	// save, which drops the watch on the file itself.
	if err := watcher.Add(filepath.Dir(schemaLocation)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", schemaLocation, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s for changes... (press Ctrl+C to stop)\n", schemaLocation)

	target := filepath.Clean(schemaLocation)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "\nSchema changed, re-running...\n")
				if _, err := runOnce(); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s for changes... (press Ctrl+C to stop)\n", schemaLocation)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}
