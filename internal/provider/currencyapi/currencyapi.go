// Package currencyapi fetches daily historical FX rates from the free
// fawazahmed0 currency-api, published as static JSON per date.
package currencyapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

// Mirrors serving the same files; tried in order.
var defaultMirrors = []string{
	"https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@%s/v1",
	"https://%s.currency-api.pages.dev/v1",
}

type currenciesResponse struct {
	Date string         `json:"date"`
	USD  map[string]any `json:"usd"`
}

// CurrencyAPI serves historical USD-based rates without an API key.
type CurrencyAPI struct {
	http    *provider.HTTPClient
	mirrors []string
}

// New creates a new currency-api adapter
func New() *CurrencyAPI {
	return &CurrencyAPI{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		mirrors: defaultMirrors,
	}
}

// NewWithBaseURL creates an adapter with custom mirror patterns (for testing).
// Each pattern takes the date tag via %s.
func NewWithBaseURL(patterns ...string) *CurrencyAPI {
	c := New()
	c.mirrors = patterns
	return c
}

// WithHTTPClient replaces the transport.
func (c *CurrencyAPI) WithHTTPClient(h *provider.HTTPClient) *CurrencyAPI {
	c.http = h
	return c
}

func (c *CurrencyAPI) ID() string              { return provider.IDCurrencyAPI }
func (c *CurrencyAPI) DataType() core.DataType { return core.DataTypeFX }
func (c *CurrencyAPI) Configured() bool        { return true }

// Fetch retrieves rates for the date, falling back across mirrors on
// transient or not-found errors.
func (c *CurrencyAPI) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	tag := core.FormatDate(req.Date)
	if req.IsLatest() {
		tag = "latest"
	}

	var lastErr error
	for _, pattern := range c.mirrors {
		url := fmt.Sprintf(pattern, tag) + "/currencies/usd.json"

		var resp currenciesResponse
		err := c.http.GetJSON(ctx, c.ID(), url, nil, &resp)
		if err == nil {
			return c.toRaw(resp, req)
		}
		lastErr = err

		var pe *provider.Error
		if errors.As(err, &pe) && pe.Kind != provider.KindTransient && pe.Kind != provider.KindNotFound {
			break
		}
	}
	return nil, lastErr
}

func (c *CurrencyAPI) toRaw(resp currenciesResponse, req provider.Request) (*provider.RawPriceData, error) {
	rates := make(map[string]float64, len(resp.USD))
	for code, v := range resp.USD {
		// the feed mixes in crypto tokens; keep ISO-style three letter codes
		if len(code) != 3 || !isAlpha(code) {
			continue
		}
		rate, ok := v.(float64)
		if !ok || rate <= 0 {
			continue
		}
		rates[provider.NormalizeCode(code)] = rate
	}
	if len(rates) == 0 {
		return nil, provider.Errorf(c.ID(), provider.KindNotFound, "no rates for %s", core.FormatDate(req.Date))
	}
	rates[core.StorageBase] = 1

	fetchedAt := time.Now().UTC()
	if d, err := time.Parse(core.DateLayout, resp.Date); err == nil {
		fetchedAt = d
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
