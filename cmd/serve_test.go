//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/monitoring"
	"github.com/sells-group/contact-migrator/internal/store"
)

type fakeRuns struct {
	runs   []model.Run
	err    error
	filter store.RunFilter
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*model.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, eris.Wrapf(store.ErrRunNotFound, "get run %s", id)
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.filter = filter
	return f.runs, f.err
}

type routerFixture struct {
	dir     string
	cp      *checkpoint.Store
	sink    *failures.Sink
	handler http.Handler
}

func newRouterFixture(t *testing.T, runs runReader) *routerFixture {
	t.Helper()
	dir := t.TempDir()
	cp := checkpoint.New(dir)
	sink := failures.NewSink(dir)

	var lister monitoring.RunLister
	if runs != nil {
		lister = runs
	}
	collector := monitoring.NewCollector(cp, sink.Path(), lister, 5)
	return &routerFixture{
		dir:     dir,
		cp:      cp,
		sink:    sink,
		handler: buildRouter(collector, sink.Path(), runs),
	}
}

func (f *routerFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t, nil)

	rr := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	runs := &fakeRuns{runs: []model.Run{{ID: "r1", Status: model.RunStatusComplete, Source: "sendgrid"}}}
	f := newRouterFixture(t, runs)

	now := time.Now().UTC()
	require.NoError(t, f.cp.Save(model.ProgressSnapshot{Processed: 50, Total: 200, StartTime: now, LastUpdate: now}))
	f.sink.Add("bad@example.com", errors.New("HTTP 422"))
	_, err := f.sink.Flush()
	require.NoError(t, err)

	rr := f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var st monitoring.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.NotNil(t, st.Checkpoint)
	assert.Equal(t, 25, st.Checkpoint.Percent)
	assert.Equal(t, 1, st.Failures.Count)
	require.Len(t, st.Runs, 1)
	assert.Equal(t, "r1", st.Runs[0].ID)
}

func TestFailuresEndpoint_Limit(t *testing.T) {
	f := newRouterFixture(t, nil)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		f.sink.Add(email, errors.New("boom"))
	}
	_, err := f.sink.Flush()
	require.NoError(t, err)

	rr := f.get(t, "/api/failures?limit=2")
	require.Equal(t, http.StatusOK, rr.Code)

	var sum failures.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Count)
	assert.Len(t, sum.Rows, 2)
	assert.Equal(t, filepath.Join(f.dir, failures.FileName), sum.Path)
}

func TestFailuresEndpoint_NoArtifact(t *testing.T) {
	f := newRouterFixture(t, nil)

	rr := f.get(t, "/api/failures")
	require.Equal(t, http.StatusOK, rr.Code)

	var sum failures.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 0, sum.Count)
}

func TestRunsEndpoint_Filters(t *testing.T) {
	runs := &fakeRuns{runs: []model.Run{{ID: "r1", Status: model.RunStatusFailed}}}
	f := newRouterFixture(t, runs)

	rr := f.get(t, "/api/runs?status=failed&source=sendgrid&limit=3&offset=6")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, model.RunStatusFailed, runs.filter.Status)
	assert.Equal(t, "sendgrid", runs.filter.Source)
	assert.Equal(t, 3, runs.filter.Limit)
	assert.Equal(t, 6, runs.filter.Offset)

	var got []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
}

func TestRunsEndpoint_Empty(t *testing.T) {
	f := newRouterFixture(t, &fakeRuns{})

	rr := f.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestRunsEndpoint_Error(t *testing.T) {
	f := newRouterFixture(t, &fakeRuns{err: errors.New("db down")})

	rr := f.get(t, "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
}

func TestRunsEndpoint_NoLedger(t *testing.T) {
	f := newRouterFixture(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/runs/r1").Code)
}

func TestRunEndpoint(t *testing.T) {
	f := newRouterFixture(t, &fakeRuns{runs: []model.Run{{ID: "r1", Source: "sendgrid"}}})

	rr := f.get(t, "/api/runs/r1")
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, "sendgrid", run.Source)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/runs/missing").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/nope").Code)
}
