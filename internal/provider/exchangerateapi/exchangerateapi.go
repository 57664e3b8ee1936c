package exchangerateapi

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://open.er-api.com/v6"
)

type latestResponse struct {
	Result             string             `json:"result"`
	ErrorType          string             `json:"error-type"`
	BaseCode           string             `json:"base_code"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
	Rates              map[string]float64 `json:"rates"`
}

// ExchangeRateAPI is the free, keyless FX source. It only knows the latest
// rates, so historical requests report not-found and fall through.
type ExchangeRateAPI struct {
	http    *provider.HTTPClient
	baseURL string
}

// New creates a new ExchangeRate-API adapter
func New() *ExchangeRateAPI {
	return &ExchangeRateAPI{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(url string) *ExchangeRateAPI {
	e := New()
	e.baseURL = url
	return e
}

// WithHTTPClient replaces the transport.
func (e *ExchangeRateAPI) WithHTTPClient(c *provider.HTTPClient) *ExchangeRateAPI {
	e.http = c
	return e
}

func (e *ExchangeRateAPI) ID() string              { return provider.IDExchangeRateAPI }
func (e *ExchangeRateAPI) DataType() core.DataType { return core.DataTypeFX }
func (e *ExchangeRateAPI) Configured() bool        { return true }

// Fetch retrieves the latest USD-based rates.
func (e *ExchangeRateAPI) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !req.IsLatest() {
		return nil, provider.Errorf(e.ID(), provider.KindNotFound,
			"historical rates not supported (%s)", core.FormatDate(req.Date))
	}

	var resp latestResponse
	url := fmt.Sprintf("%s/latest/%s", e.baseURL, core.StorageBase)
	if err := e.http.GetJSON(ctx, e.ID(), url, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		return nil, provider.Errorf(e.ID(), provider.KindMalformed, "api error: %s", resp.ErrorType)
	}

	rates := make(map[string]float64, len(resp.Rates))
	for code, rate := range resp.Rates {
		if rate > 0 {
			rates[provider.NormalizeCode(code)] = rate
		}
	}
	if len(rates) == 0 {
		return nil, provider.Errorf(e.ID(), provider.KindNotFound, "no rates in response")
	}
	rates[core.StorageBase] = 1

	fetchedAt := time.Now().UTC()
	if resp.TimeLastUpdateUnix > 0 {
		fetchedAt = time.Unix(resp.TimeLastUpdateUnix, 0).UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}
