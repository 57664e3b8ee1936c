package openexchangerates

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://openexchangerates.org/api"
)

type ratesResponse struct {
	Timestamp int64              `json:"timestamp"`
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
}

// OpenExchangeRates is the paid FX source. It serves latest and historical
// USD-based rates and requires an app id.
type OpenExchangeRates struct {
	http    *provider.HTTPClient
	baseURL string
	appID   string
}

// New creates a new OpenExchangeRates adapter
func New(appID string) *OpenExchangeRates {
	return &OpenExchangeRates{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
		appID:   appID,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(appID, url string) *OpenExchangeRates {
	o := New(appID)
	o.baseURL = url
	return o
}

// WithHTTPClient replaces the transport.
func (o *OpenExchangeRates) WithHTTPClient(c *provider.HTTPClient) *OpenExchangeRates {
	o.http = c
	return o
}

func (o *OpenExchangeRates) ID() string              { return provider.IDOpenExchangeRates }
func (o *OpenExchangeRates) DataType() core.DataType { return core.DataTypeFX }
func (o *OpenExchangeRates) Configured() bool        { return o.appID != "" }

// Fetch retrieves USD-based rates for the requested date.
func (o *OpenExchangeRates) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !o.Configured() {
		return nil, provider.Errorf(o.ID(), provider.KindUnavailable, "app id not configured")
	}

	path := "latest.json"
	if !req.IsLatest() {
		path = fmt.Sprintf("historical/%s.json", core.FormatDate(req.Date))
	}
	u := fmt.Sprintf("%s/%s?app_id=%s", o.baseURL, path, url.QueryEscape(o.appID))

	var resp ratesResponse
	if err := o.http.GetJSON(ctx, o.ID(), u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Base != "" && provider.NormalizeCode(resp.Base) != core.StorageBase {
		return nil, provider.Errorf(o.ID(), provider.KindMalformed, "unexpected base %q", resp.Base)
	}
	if len(resp.Rates) == 0 {
		return nil, provider.Errorf(o.ID(), provider.KindNotFound, "no rates for %s", core.FormatDate(req.Date))
	}

	rates := make(map[string]float64, len(resp.Rates)+1)
	for code, rate := range resp.Rates {
		if rate > 0 {
			rates[provider.NormalizeCode(code)] = rate
		}
	}
	rates[core.StorageBase] = 1

	fetchedAt := time.Now().UTC()
	if resp.Timestamp > 0 {
		fetchedAt = time.Unix(resp.Timestamp, 0).UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}
