package metalpriceapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://api.metalpriceapi.com/v1"
)

type ratesResponse struct {
	Success   bool               `json:"success"`
	Base      string             `json:"base"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
	Error     struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
	} `json:"error"`
}

// MetalPriceAPI serves latest and dated metal rates quoted as ounces per USD.
type MetalPriceAPI struct {
	http    *provider.HTTPClient
	baseURL string
	apiKey  string
}

// New creates a new MetalpriceAPI adapter
func New(apiKey string) *MetalPriceAPI {
	return &MetalPriceAPI{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(apiKey, url string) *MetalPriceAPI {
	m := New(apiKey)
	m.baseURL = url
	return m
}

// WithHTTPClient replaces the transport.
func (m *MetalPriceAPI) WithHTTPClient(c *provider.HTTPClient) *MetalPriceAPI {
	m.http = c
	return m
}

func (m *MetalPriceAPI) ID() string              { return provider.IDMetalPriceAPI }
func (m *MetalPriceAPI) DataType() core.DataType { return core.DataTypeMetals }
func (m *MetalPriceAPI) Configured() bool        { return m.apiKey != "" }

// Fetch retrieves rates for the date. The API quotes XAU as ounces per
// dollar and, on newer plans, USDXAU as dollars per ounce; the latter is
// preferred when present.
func (m *MetalPriceAPI) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !m.Configured() {
		return nil, provider.Errorf(m.ID(), provider.KindUnavailable, "api key not configured")
	}

	path := "latest"
	if !req.IsLatest() {
		path = core.FormatDate(req.Date)
	}
	u := fmt.Sprintf("%s/%s?api_key=%s&base=USD&currencies=%s",
		m.baseURL, path, url.QueryEscape(m.apiKey), strings.Join(provider.MetalSymbols, ","))

	var resp ratesResponse
	if err := m.http.GetJSON(ctx, m.ID(), u, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		kind := provider.KindMalformed
		if resp.Error.StatusCode != 0 {
			kind = provider.KindForStatus(resp.Error.StatusCode)
		}
		return nil, provider.Errorf(m.ID(), kind, "api error: %s", resp.Error.Message)
	}

	rates := make(map[string]float64, len(provider.MetalSymbols))
	for _, sym := range provider.MetalSymbols {
		perOunce := resp.Rates["USD"+sym]
		if perOunce <= 0 {
			perOunce = provider.Invert(resp.Rates[sym])
		}
		if perOunce > 0 {
			rates[provider.MetalNames[sym]] = provider.PerGram(perOunce)
		}
	}
	if len(rates) == 0 {
		return nil, provider.Errorf(m.ID(), provider.KindNotFound, "no metal rates for %s", core.FormatDate(req.Date))
	}

	fetchedAt := time.Now().UTC()
	if resp.Timestamp > 0 {
		fetchedAt = time.Unix(resp.Timestamp, 0).UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}
