// internal/api/handler/api/sync_test.go
package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/nisab/internal/api/job"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/provider/mock"
)

type gaugeRecorder struct {
	mu   sync.Mutex
	last map[string]int
}

func (g *gaugeRecorder) SetJobsActive(jobType string, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[string]int)
	}
	g.last[jobType] = count
}

func newSyncHandler(f *fixture, gauge JobGauge) *SyncHandler {
	h := NewSyncHandler(job.NewStore(10, time.Hour), f.syncer, gauge, nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func waitForJob(t *testing.T, h *SyncHandler, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := h.jobs.Get(id)
		require.NoError(t, err)
		if j.Status.Done() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestSyncHandler_CreateAndStatus(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeFX: {mock.New("fx-a", core.DataTypeFX).Returns(mock.FX())},
	})
	gauge := &gaugeRecorder{}
	h := newSyncHandler(f, gauge)
	defer h.Close()

	body := `{"types":["fx"],"start":"2026-01-10","end":"2026-01-12"}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest("POST", "/api/v1/sync", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decodeData(t, w)["job_id"].(string)
	require.NotEmpty(t, id)

	j := waitForJob(t, h, id)
	assert.Equal(t, job.StatusComplete, j.Status)
	assert.Equal(t, JobSync, j.Type)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sync/{id}", h.GetStatus)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/sync/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "complete", data["status"])
	result := data["result"].(map[string]any)
	assert.EqualValues(t, 3, result["fetched"])

	gauge.mu.Lock()
	assert.Contains(t, gauge.last, JobSync)
	gauge.mu.Unlock()

	ok, err := f.store.Has(t.Context(), core.NewKey(core.DataTypeFX, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncHandler_Force(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeFX: {mock.New("fx-a", core.DataTypeFX).Returns(mock.FX())},
	})
	h := newSyncHandler(f, nil)
	defer h.Close()

	body := `{"types":["fx"],"start":"2026-01-10","end":"2026-01-10","force":true}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest("POST", "/api/v1/sync", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusAccepted, w.Code)

	j := waitForJob(t, h, decodeData(t, w)["job_id"].(string))
	assert.Equal(t, JobResync, j.Type)

	runs, err := f.syncer.Runs(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Forced)
}

func TestSyncHandler_BadRequest(t *testing.T) {
	h := newSyncHandler(newFixture(nil), nil)
	defer h.Close()

	for _, body := range []string{
		`not json`,
		`{"types":["stocks"],"start":"2026-01-10","end":"2026-01-12"}`,
		`{"start":"2026-01-10"}`,
		`{"start":"2026-01-12","end":"2026-01-10"}`,
	} {
		w := httptest.NewRecorder()
		h.Create(w, httptest.NewRequest("POST", "/api/v1/sync", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestSyncHandler_UnknownJob(t *testing.T) {
	h := newSyncHandler(newFixture(nil), nil)
	defer h.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sync/{id}", h.GetStatus)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/sync/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, w).Code)
}

func TestSyncHandler_Runs(t *testing.T) {
	f := newFixture(nil)
	h := newSyncHandler(f, nil)
	defer h.Close()

	w := httptest.NewRecorder()
	h.Runs(w, httptest.NewRequest("GET", "/api/v1/sync/runs?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.Runs(w, httptest.NewRequest("GET", "/api/v1/sync/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
