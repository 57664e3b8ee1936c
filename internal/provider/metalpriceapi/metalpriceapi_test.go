package metalpriceapi

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

func TestMetalPriceAPI_FetchHistorical(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025-06-01", r.URL.Path)
		assert.Equal(t, "XAU,XAG,XPT,XPD", r.URL.Query().Get("currencies"))
		w.Write([]byte(`{
			"success": true,
			"base": "USD",
			"timestamp": 1748736000,
			"rates": {"XAU": 0.25, "XAG": 0.032150746, "USDXAG": 31.1035}
		}`))
	}))
	defer server.Close()

	data, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{
		Date:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Today: today,
	})
	require.NoError(t, err)

	// XAU derived from the inverse rate: 4 USD/oz; XAG from the direct quote
	assert.Equal(t, provider.PerGram(4), data.Payload.Rates["gold"])
	assert.Equal(t, 1.0, data.Payload.Rates["silver"])
	assert.NotContains(t, data.Payload.Rates, "platinum")
	assert.Equal(t, time.Unix(1748736000, 0).UTC(), data.FetchedAt)
}

func TestMetalPriceAPI_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": {"statusCode": 401, "message": "invalid api key"}}`))
	}))
	defer server.Close()

	_, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{Date: today, Today: today})

	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.KindUnavailable, pe.Kind)
}

func TestMetalPriceAPI_NoRates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		w.Write([]byte(`{"success": true, "rates": {}}`))
	}))
	defer server.Close()

	_, err := NewWithBaseURL("key", server.URL).Fetch(context.Background(), provider.Request{Date: today, Today: today})

	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.KindNotFound, pe.Kind)
}
