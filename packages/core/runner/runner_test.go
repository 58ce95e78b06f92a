package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/schemaprobe/packages/checks"
	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
)

const notesSchema = `{
  "openapi": "3.0.0",
  "info": {"title": "Notes API", "version": "1.0.0"},
  "paths": {
    "/notes": {
      "post": {
        "operationId": "createNote",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["text"],
                "properties": {"text": {"type": "string"}}
              }
            }
          }
        },
        "responses": {"201": {"description": "Created"}}
      }
    },
    "/notes/{note_id}": {
      "get": {
        "operationId": "getNote",
        "parameters": [
          {"name": "note_id", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 1, "maximum": 1000000}}
        ],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
      }
    }
  }
}`

// notesApp is a minimal API: POST creates notes with increasing ids, GET by
// id returns 200 for known ids and 404 otherwise.
type notesApp struct {
	mu     sync.Mutex
	nextID int
	notes  map[int]string
	broken bool
}

func newNotesApp() *notesApp {
	return &notesApp{nextID: 1, notes: make(map[int]string)}
}

func (a *notesApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.broken {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch {
	case r.Method == "POST" && r.URL.Path == "/notes":
		id := a.nextID
		a.nextID++
		a.notes[id] = "note"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})

	case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/notes/"):
		id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/notes/"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if _, ok := a.notes[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "text": a.notes[id]})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func finishedEvent(t *testing.T, events []Event) Finished {
	t.Helper()
	require.NotEmpty(t, events)
	finished, ok := events[len(events)-1].(Finished)
	require.True(t, ok, "last event must be Finished, got %T", events[len(events)-1])
	return finished
}

func TestExecute_EventStreamShape(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		Seed:        1,
		MaxExamples: 3,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))

	initialized, ok := events[0].(Initialized)
	require.True(t, ok, "first event must be Initialized, got %T", events[0])
	assert.Equal(t, 2, initialized.ScheduledCount)

	var befores, afters int
	for _, ev := range events {
		switch ev.(type) {
		case BeforeExecution:
			befores++
		case AfterExecution:
			afters++
		}
	}
	assert.Equal(t, 2, befores)
	assert.Equal(t, 2, afters)

	finished := finishedEvent(t, events)
	assert.Equal(t, 2, finished.Results.PassedCount()+finished.Results.FailedCount()+finished.Results.ErroredCount())
}

func TestExecute_PassingRun(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		Seed:        1,
		MaxExamples: 5,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	// GET with random ids returns 404, which the default check accepts.
	assert.Equal(t, 2, finished.Results.PassedCount())
	assert.False(t, finished.Results.HasFailures())
	assert.False(t, finished.Results.HasErrors())
}

func TestExecute_ServerErrorIsFailure(t *testing.T) {
	app := newNotesApp()
	app.broken = true

	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         app,
		BaseURL:     "http://app.local",
		Seed:        1,
		MaxExamples: 2,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	assert.Equal(t, 2, finished.Results.FailedCount())
	assert.True(t, finished.Results.HasFailures())

	for _, ev := range events {
		if after, ok := ev.(AfterExecution); ok {
			assert.Equal(t, StatusFailure, after.Status)
		}
	}
}

func TestExecute_ExitFirstStopsAfterFirstFailure(t *testing.T) {
	app := newNotesApp()
	app.broken = true

	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         app,
		BaseURL:     "http://app.local",
		Seed:        1,
		MaxExamples: 2,
		ExitFirst:   true,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))

	var afters int
	for _, ev := range events {
		if _, ok := ev.(AfterExecution); ok {
			afters++
		}
	}
	assert.Equal(t, 1, afters)

	// Finished still arrives with the partial results, and the result set
	// holds exactly the endpoints that emitted events.
	finished := finishedEvent(t, events)
	assert.Equal(t, 1, finished.Results.FailedCount())
	assert.Len(t, finished.Results.Results(), afters)
}

func TestExecute_DependencyOrderingFeedsConsumer(t *testing.T) {
	app := newNotesApp()
	deps := DependencyMap{
		"post:/notes": {Store: []string{"id"}},
		"get:/notes/{note_id}": {
			Required: map[string]map[string]string{
				"path_parameters": {"note_id": "post:/notes:id"},
			},
		},
	}

	cfg := Config{
		SchemaData:   []byte(notesSchema),
		App:          app,
		BaseURL:      "http://app.local",
		Seed:         1,
		MaxExamples:  2,
		Workers:      1,
		Checks:       checks.All()[:2], // not_a_server_error, status_code_conformance
		Dependencies: deps,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	require.False(t, finished.Results.HasErrors())

	// The GET endpoint must have hit an existing note at least once: its
	// interactions include a 200 produced by a stored id.
	var got200 bool
	for _, result := range finished.Results.Results() {
		if result.Endpoint.Method != "GET" {
			continue
		}
		for _, code := range result.StatusCodes {
			if code == http.StatusOK {
				got200 = true
			}
		}
	}
	assert.True(t, got200, "GET /notes/{note_id} never resolved a stored id")
}

func TestExecute_PoolRejectsDependencies(t *testing.T) {
	cfg := Config{
		SchemaData:   []byte(notesSchema),
		App:          newNotesApp(),
		BaseURL:      "http://app.local",
		Workers:      4,
		Dependencies: DependencyMap{"post:/notes": {Store: []string{"id"}}},
	}

	events := collectEvents(t, Execute(context.Background(), cfg))

	require.Len(t, events, 1)
	internal, ok := events[0].(InternalError)
	require.True(t, ok)
	assert.Contains(t, internal.Err.Error(), "single worker")
}

func TestExecute_InternalErrorOnBadSchema(t *testing.T) {
	cfg := Config{
		SchemaData: []byte("{not json"),
	}

	events := collectEvents(t, Execute(context.Background(), cfg))

	require.Len(t, events, 1)
	_, ok := events[0].(InternalError)
	assert.True(t, ok)
}

func TestExecute_CancelledRunStillFinishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		MaxExamples: 2,
	}

	events := collectEvents(t, Execute(ctx, cfg))

	// Even a cancelled run terminates the stream with Finished and closes
	// the channel, and the cancellation itself is visible as Interrupted.
	finished := finishedEvent(t, events)
	assert.NotNil(t, finished.Results)

	var interrupted bool
	for _, ev := range events {
		if _, ok := ev.(Interrupted); ok {
			interrupted = true
		}
	}
	assert.True(t, interrupted, "cancelled run must emit Interrupted")
}

func TestExecute_InProcessNeedsNoBaseURL(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		Seed:        1,
		MaxExamples: 3,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	// The handler is dispatched by path, so the absence of a base URL (and
	// of any servers entry in the schema) must not produce errors.
	assert.Zero(t, finished.Results.ErroredCount())
	assert.Equal(t, 2, finished.Results.PassedCount())
}

// flakyApp fails the very first request with a 500 and answers 200 after
// that, so a falsifying case can never be reproduced.
type flakyApp struct {
	mu    sync.Mutex
	calls int
}

func (a *flakyApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.mu.Unlock()

	if first {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestExecute_UnreliableEndpointIsErrored(t *testing.T) {
	const pingSchema = `{
	  "openapi": "3.0.0",
	  "info": {"title": "Ping API", "version": "1.0.0"},
	  "paths": {
	    "/ping": {"get": {"responses": {"200": {"description": "OK"}}}}
	  }
	}`

	cfg := Config{
		SchemaData:  []byte(pingSchema),
		App:         &flakyApp{},
		Seed:        1,
		MaxExamples: 5,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	// The failing case replays clean, so the endpoint lands in the errored
	// bucket with a synthetic error instead of counting as a failure.
	assert.Equal(t, 1, finished.Results.ErroredCount())
	assert.Equal(t, 0, finished.Results.FailedCount())

	results := finished.Results.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsErrored())
	require.NotEmpty(t, results[0].Errors)
	assert.Contains(t, results[0].Errors[len(results[0].Errors)-1].Err.Error(), "unreliable results")

	for _, ev := range events {
		if after, ok := ev.(AfterExecution); ok {
			assert.Equal(t, StatusError, after.Status)
		}
	}
}

func TestExecute_ZeroSeedIsResolved(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		MaxExamples: 1,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	// The recorded seed must be the one that drove generation, never the
	// zero default.
	for _, result := range finished.Results.Results() {
		assert.NotZero(t, result.Seed)
	}
}

func TestExecute_PoolRunsAllEndpoints(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		Workers:     4,
		Seed:        1,
		MaxExamples: 2,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)
	assert.Len(t, finished.Results.Results(), 2)
}

func TestNew_DerandomizeFixesSeed(t *testing.T) {
	run := func() []int {
		cfg := Config{
			SchemaData:  []byte(notesSchema),
			App:         newNotesApp(),
			BaseURL:     "http://app.local",
			Derandomize: true,
			MaxExamples: 3,
		}
		events := collectEvents(t, Execute(context.Background(), cfg))
		finished := finishedEvent(t, events)

		var codes []int
		for _, result := range finished.Results.Results() {
			codes = append(codes, result.StatusCodes...)
		}
		return codes
	}

	assert.Equal(t, run(), run())
}

func TestNew_NegativeModeProducesViolations(t *testing.T) {
	cfg := Config{
		SchemaData:  []byte(notesSchema),
		App:         newNotesApp(),
		BaseURL:     "http://app.local",
		Seed:        1,
		MaxExamples: 2,
		Mode:        generator.ModeInvalid,
	}

	events := collectEvents(t, Execute(context.Background(), cfg))
	finished := finishedEvent(t, events)

	// Invalid cases still execute; the lenient default check passes as long
	// as the app answers without a 5xx.
	assert.NotNil(t, finished.Results)
	assert.False(t, finished.Results.IsEmpty())
}
