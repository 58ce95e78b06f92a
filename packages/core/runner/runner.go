package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// DefaultMaxExamples is how many cases are generated per endpoint unless
// configured otherwise.
const DefaultMaxExamples = 25

// Kind is the scheduling strategy, resolved once at setup.
type Kind int

const (
	KindSingleThread Kind = iota
	KindPool
)

// Runner executes every endpoint of a schema and streams events. Construct
// via New; the zero value is not usable.
type Runner struct {
	schema      *schema.Schema
	strategy    *generator.Strategy
	executor    *Executor
	kind        Kind
	workers     int
	maxExamples int
	exitFirst   bool
	seed        int64
	mode        generator.Mode
}

// Execute starts the run and returns the event stream. The channel is closed
// after the final event. Cancelling the context interrupts the run.
func (r *Runner) Execute(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		r.execute(ctx, out)
	}()
	return out
}

func (r *Runner) execute(ctx context.Context, out chan<- Event) {
	start := time.Now()
	results := NewTestResultSet()
	endpoints := r.schema.Endpoints()

	out <- Initialized{ScheduledCount: len(endpoints), StartTime: start}

	// stop is set by the producer itself after a failing endpoint under
	// exit-first, before the next endpoint starts. Keeping the cut on the
	// producer side guarantees no endpoint runs without emitting its
	// Before/AfterExecution pair.
	var stop atomic.Bool

	inner := make(chan Event)
	go func() {
		defer close(inner)
		if r.kind == KindPool {
			r.executePool(ctx, endpoints, results, inner, &stop)
		} else {
			r.executeSequential(ctx, endpoints, results, inner, &stop)
		}
	}()

	for event := range inner {
		out <- event
	}

	out <- Finished{Results: results, RunningTime: time.Since(start)}
}

func (r *Runner) executeSequential(ctx context.Context, endpoints []*schema.Endpoint, results *TestResultSet, events chan<- Event, stop *atomic.Bool) {
	for _, endpoint := range endpoints {
		if stop.Load() {
			return
		}
		if ctx.Err() != nil {
			events <- Interrupted{}
			return
		}
		if interrupted := r.runTest(ctx, endpoint, results, events, stop); interrupted {
			events <- Interrupted{}
			return
		}
	}
}

func (r *Runner) executePool(ctx context.Context, endpoints []*schema.Endpoint, results *TestResultSet, events chan<- Event, stop *atomic.Bool) {
	jobs := make(chan *schema.Endpoint)
	var wg sync.WaitGroup
	var interruptOnce sync.Once

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				if stop.Load() {
					return
				}
				if ctx.Err() != nil {
					interruptOnce.Do(func() { events <- Interrupted{} })
					return
				}
				if interrupted := r.runTest(ctx, endpoint, results, events, stop); interrupted {
					interruptOnce.Do(func() { events <- Interrupted{} })
					return
				}
			}
		}()
	}

feed:
	for _, endpoint := range endpoints {
		if stop.Load() {
			break
		}
		select {
		case jobs <- endpoint:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
}

// runTest runs one endpoint with all error handling needed. It reports true
// when the run was interrupted by cancellation, in which case no
// AfterExecution event is emitted and the result is discarded.
func (r *Runner) runTest(ctx context.Context, endpoint *schema.Endpoint, results *TestResultSet, events chan<- Event, stop *atomic.Bool) bool {
	result := NewTestResult(endpoint, r.seed)
	events <- BeforeExecution{Endpoint: endpoint}

	logger, buf := newCaptureLogger()
	status, interrupted := r.runEndpoint(ctx, logger, endpoint, result)
	if interrupted {
		return true
	}

	result.Logs = captureLines(buf)
	results.Append(result)
	events <- AfterExecution{Result: result, Status: status, CapturedOutput: result.Logs}
	if r.exitFirst && status != StatusSuccess {
		stop.Store(true)
	}
	return false
}

func (r *Runner) runEndpoint(ctx context.Context, logger *slog.Logger, endpoint *schema.Endpoint, result *TestResult) (Status, bool) {
	iterator, err := r.strategy.Build(endpoint, r.mode)
	if err != nil {
		result.AddError(err)
		return StatusError, false
	}

	for i := 0; i < r.maxExamples; i++ {
		select {
		case <-ctx.Done():
			return StatusError, true
		default:
		}

		c, err := iterator.Next()
		if err != nil {
			if errors.Is(err, generator.ErrUnsatisfiable) {
				result.AddError(errors.New("unable to satisfy schema parameters for this endpoint"))
			} else {
				result.AddError(err)
			}
			return StatusError, false
		}

		err = r.executor.Execute(ctx, logger, c, result)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return StatusError, true
		}

		var group *FailureGroup
		if errors.As(err, &group) {
			if r.isFlaky(ctx, logger, endpoint, c) {
				result.MarkErrored()
				var example *schema.Case
				if len(result.Checks) > 0 {
					example = result.Checks[len(result.Checks)-1].Example
				}
				result.AddErrorWithExample(
					errors.New("tests on this endpoint produce unreliable results: "+
						"falsified on the first call but did not on a subsequent one"),
					example,
				)
				return StatusError, false
			}
			return StatusFailure, false
		}

		result.AddErrorWithExample(err, c)
		return StatusError, false
	}
	return StatusSuccess, false
}

// isFlaky replays the falsifying case once against a scratch result. A clean
// replay means the endpoint does not fail deterministically.
func (r *Runner) isFlaky(ctx context.Context, logger *slog.Logger, endpoint *schema.Endpoint, c *schema.Case) bool {
	scratch := NewTestResult(endpoint, r.seed)
	return r.executor.Execute(ctx, logger, c, scratch) == nil
}

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), buf
}

func captureLines(buf *bytes.Buffer) []string {
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
