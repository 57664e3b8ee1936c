package metalsdev

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/nisab/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func TestMetalsDev_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "toz", r.URL.Query().Get("unit"))
		w.Write([]byte(`{
			"status": "success",
			"currency": "USD",
			"unit": "toz",
			"metals": {"gold": 2598, "silver": 31.1035, "platinum": 0},
			"timestamps": {"metal": "2026-01-15T10:00:00.000Z"}
		}`))
	}))
	defer server.Close()

	data, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{Date: today, Today: today})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"gold": 83.5276, "silver": 1}, data.Payload.Rates)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), data.FetchedAt)
}

func TestMetalsDev_AcceptsSymbolKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","metals":{"XAU":31.1035}}`))
	}))
	defer server.Close()

	data, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{Date: today, Today: today})
	require.NoError(t, err)
	assert.Equal(t, 1.0, data.Payload.Rates["gold"])
}

func TestMetalsDev_HistoricalNotFound(t *testing.T) {
	_, err := New("key").Fetch(context.Background(), provider.Request{Date: today.AddDate(0, -1, 0), Today: today})

	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.KindNotFound, pe.Kind)
}

func TestMetalsDev_APIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failure","error_code":429,"error_message":"quota exceeded"}`))
	}))
	defer server.Close()

	_, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{Date: today, Today: today})

	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.KindRateLimited, pe.Kind)
}
