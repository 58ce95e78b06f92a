package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResults() *runner.TestResultSet {
	results := runner.NewTestResultSet()

	passing := runner.NewTestResult(&schema.Endpoint{Method: "GET", Path: "/health"}, 42)
	passing.AddSuccess("not_a_server_error", nil)
	results.Append(passing)

	failing := runner.NewTestResult(&schema.Endpoint{Method: "POST", Path: "/notes"}, 42)
	failing.AddSuccess("not_a_server_error", nil)
	failing.AddFailure("status_code_conformance", nil, "received 418")
	results.Append(failing)

	errored := runner.NewTestResult(&schema.Endpoint{Method: "GET", Path: "/broken"}, 42)
	errored.AddError(errors.New("connection refused"))
	results.Append(errored)

	return results
}

func TestRecordAndListRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Now()

	runID, err := store.RecordRun(ctx, "api.json", started, 1500*time.Millisecond, 42, sampleResults())
	require.NoError(t, err)
	assert.Positive(t, runID)

	records, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, runID, record.ID)
	assert.Equal(t, "api.json", record.SchemaLocation)
	assert.Equal(t, 1500*time.Millisecond, record.Duration)
	assert.Equal(t, int64(42), record.Seed)
	assert.Equal(t, 1, record.Passed)
	assert.Equal(t, 1, record.Failed)
	assert.Equal(t, 1, record.Errored)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.RecordRun(ctx, "a.json", time.Now(), time.Second, 1, sampleResults())
	require.NoError(t, err)
	second, err := store.RecordRun(ctx, "b.json", time.Now(), time.Second, 2, sampleResults())
	require.NoError(t, err)

	records, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID)
	assert.Equal(t, first, records[1].ID)
}

func TestListRunsDefaultLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := store.RecordRun(ctx, "api.json", time.Now(), time.Second, int64(i), sampleResults())
		require.NoError(t, err)
	}

	records, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestOpenCreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	// A second open against the same file must not fail on existing tables.
	again, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}
