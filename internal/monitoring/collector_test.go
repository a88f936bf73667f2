package monitoring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/store"
)

type mockRuns struct {
	runs   []model.Run
	err    error
	filter store.RunFilter
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filter = filter
	return m.runs, m.err
}

func TestCollector_Empty(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(checkpoint.New(dir), filepath.Join(dir, failures.FileName), nil, 0)

	st, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Checkpoint)
	assert.Equal(t, 0, st.Failures.Count)
	assert.Empty(t, st.Runs)
	assert.False(t, st.CollectedAt.IsZero())
}

func TestCollector_CheckpointFailuresAndRuns(t *testing.T) {
	dir := t.TempDir()
	cp := checkpoint.New(dir)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, cp.Save(model.ProgressSnapshot{
		Processed:  250,
		Total:      1000,
		Created:    200,
		Updated:    50,
		Failed:     3,
		StartTime:  start,
		LastUpdate: start.Add(90 * time.Second),
	}))

	sink := failures.NewSink(dir)
	sink.Add("a@example.com", errors.New("HTTP 422"))
	sink.Add("b@example.com", errors.New("HTTP 400"))
	_, err := sink.Flush()
	require.NoError(t, err)

	runs := &mockRuns{runs: []model.Run{{ID: "r1", Status: model.RunStatusComplete}}}
	c := NewCollector(cp, sink.Path(), runs, 5)

	st, err := c.Collect(context.Background())
	require.NoError(t, err)

	require.NotNil(t, st.Checkpoint)
	assert.Equal(t, 25, st.Checkpoint.Percent)
	assert.Equal(t, 250, st.Checkpoint.Processed)
	assert.Equal(t, 90*time.Second, st.Checkpoint.Elapsed)

	assert.Equal(t, 2, st.Failures.Count)
	require.Len(t, st.Failures.Rows, 2)
	assert.Equal(t, "a@example.com", st.Failures.Rows[0].Email)

	require.Len(t, st.Runs, 1)
	assert.Equal(t, 5, runs.filter.Limit)
}

func TestCollector_CorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cp := checkpoint.New(dir)
	require.NoError(t, os.WriteFile(cp.Path(), []byte("{not json"), 0o644))

	c := NewCollector(cp, filepath.Join(dir, failures.FileName), nil, 0)
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: load checkpoint")
}

func TestCollector_ListRunsError(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(checkpoint.New(dir), filepath.Join(dir, failures.FileName), &mockRuns{err: errors.New("db down")}, 0)

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
