// internal/api/handler/api/pricing_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/nisab/internal/api/response"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/provider/mock"
	"github.com/newthinker/nisab/internal/repository"
	"github.com/newthinker/nisab/internal/storage/local"
	"github.com/newthinker/nisab/internal/syncer"
)

var fixedNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *local.MemoryStore
	registry *provider.Registry
	repo     *repository.Repository
	syncer   *syncer.Syncer
}

func newFixture(chains map[core.DataType][]provider.Adapter) *fixture {
	store := local.NewMemoryStore()
	registry := provider.NewChain(time.Second, nil, chains)
	repo := repository.New(store, registry)
	return &fixture{
		store:    store,
		registry: registry,
		repo:     repo,
		syncer:   syncer.New(repo, syncer.WithRetry(syncer.RetryConfig{MaxAttempts: 1})),
	}
}

func (f *fixture) pricing() *PricingHandler {
	h := NewPricingHandler(f.repo)
	h.now = func() time.Time { return fixedNow }
	return h
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "unexpected body %s", w.Body.String())
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestPricingHandler_Get(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeFX: {mock.New("fx-a", core.DataTypeFX).Returns(mock.FX())},
	})
	h := f.pricing()

	req := httptest.NewRequest("GET", "/api/v1/pricing?type=fx&date=2026-01-10&base=EUR", nil)
	w := httptest.NewRecorder()
	h.Get(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, "fx", data["data_type"])
	assert.Equal(t, "2026-01-10", data["date"])
	assert.Equal(t, "EUR", data["base"])
	assert.Equal(t, "daily", data["cadence"])
	assert.Equal(t, "upstream", data["source"])
	assert.Equal(t, "fx-a", data["provider_id"])
	assert.Equal(t, 1.0, data["rates"].(map[string]any)["EUR"])

	// second lookup comes from the cache with no provider
	w = httptest.NewRecorder()
	h.Get(w, httptest.NewRequest("GET", "/api/v1/pricing?type=fx&date=2026-01-10", nil))
	data = decodeData(t, w)
	assert.Equal(t, "local", data["source"])
	assert.Nil(t, data["provider_id"])
}

func TestPricingHandler_DefaultsToToday(t *testing.T) {
	a := mock.New("crypto-a", core.DataTypeCrypto).Returns(mock.Crypto())
	f := newFixture(map[core.DataType][]provider.Adapter{core.DataTypeCrypto: {a}})

	w := httptest.NewRecorder()
	f.pricing().Get(w, httptest.NewRequest("GET", "/api/v1/pricing?type=crypto", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-01-15", decodeData(t, w)["date"])
	require.Len(t, a.Requests(), 1)
	assert.True(t, a.Requests()[0].IsLatest())
}

func TestPricingHandler_BadInput(t *testing.T) {
	f := newFixture(nil)
	h := f.pricing()

	for _, url := range []string{
		"/api/v1/pricing",
		"/api/v1/pricing?type=stocks",
		"/api/v1/pricing?type=fx&date=10-01-2026",
		"/api/v1/pricing?type=fx&today=nope",
	} {
		w := httptest.NewRecorder()
		h.Get(w, httptest.NewRequest("GET", url, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code, url)
	}
}

func TestPricingHandler_Unavailable(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeMetals: {
			mock.New("goldapi", core.DataTypeMetals).Unconfigured(),
			mock.New("metalsdev", core.DataTypeMetals).Fails(provider.KindNotFound, "no data"),
		},
	})

	w := httptest.NewRecorder()
	f.pricing().Get(w, httptest.NewRequest("GET", "/api/v1/pricing?type=metals&date=2026-01-10", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, "PRICING_UNAVAILABLE", detail.Code)
	assert.Equal(t, []string{
		"goldapi (unavailable): not configured",
		"metalsdev (not_found): no data",
	}, detail.Reasons)
}

func TestPricingHandler_Cadence(t *testing.T) {
	f := newFixture(nil)

	w := httptest.NewRecorder()
	f.pricing().Cadence(w, httptest.NewRequest("GET", "/api/v1/cadence?date=2025-11-20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "weekly", data["cadence"])
	assert.Equal(t, "2025-11-17", data["canonical"])
	assert.Equal(t, "2025-11-20", data["requested"])
	assert.EqualValues(t, 56, data["age_days"])
	assert.Contains(t, data, "boundaries")
}
