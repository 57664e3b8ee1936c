package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// how far back a past date may fall back to the last trading day
	lookback = 7 * 24 * time.Hour
)

// Front-month COMEX/NYMEX futures, quoted in USD per troy ounce.
var futures = map[string]string{
	"XAU": "GC=F",
	"XAG": "SI=F",
	"XPT": "PL=F",
	"XPD": "PA=F",
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Yahoo derives metal spot prices from futures settlements. It needs no
// key and covers past dates, using the last trading day on or before the
// requested one.
type Yahoo struct {
	http    *provider.HTTPClient
	baseURL string
}

// New creates a new Yahoo adapter
func New() *Yahoo {
	return &Yahoo{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates a Yahoo adapter with custom base URL (for testing)
func NewWithBaseURL(url string) *Yahoo {
	y := New()
	y.baseURL = url
	return y
}

// WithHTTPClient replaces the transport.
func (y *Yahoo) WithHTTPClient(h *provider.HTTPClient) *Yahoo {
	y.http = h
	return y
}

func (y *Yahoo) ID() string              { return provider.IDYahoo }
func (y *Yahoo) DataType() core.DataType { return core.DataTypeMetals }
func (y *Yahoo) Configured() bool        { return true }

func (y *Yahoo) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	date := core.Day(req.Date)
	rates := make(map[string]float64, len(futures))
	var latest int64
	var lastErr error

	for _, sym := range provider.MetalSymbols {
		price, ts, err := y.fetchOne(ctx, futures[sym], date, req.IsLatest())
		if err != nil {
			var pe *provider.Error
			if errors.As(err, &pe) && (pe.Kind == provider.KindNotFound || pe.Kind == provider.KindMalformed) {
				lastErr = err
				continue
			}
			return nil, err
		}
		rates[provider.MetalNames[sym]] = provider.PerGram(price)
		latest = max(latest, ts)
	}

	if len(rates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, provider.Errorf(y.ID(), provider.KindNotFound, "no futures prices")
	}

	fetchedAt := time.Now().UTC()
	if latest > 0 {
		fetchedAt = time.Unix(latest, 0).UTC()
	}
	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}

// fetchOne returns the USD per ounce price of one contract and its timestamp.
func (y *Yahoo) fetchOne(ctx context.Context, symbol string, date time.Time, isLatest bool) (float64, int64, error) {
	u := fmt.Sprintf("%s/%s?interval=1d", y.baseURL, url.PathEscape(symbol))
	if isLatest {
		u += "&range=1d"
	} else {
		u += fmt.Sprintf("&period1=%d&period2=%d", date.Add(-lookback).Unix(), date.AddDate(0, 0, 1).Unix())
	}

	var resp chartResponse
	if err := y.http.GetJSON(ctx, y.ID(), u, nil, &resp); err != nil {
		return 0, 0, err
	}
	if resp.Chart.Error != nil {
		return 0, 0, provider.Errorf(y.ID(), provider.KindNotFound, "%s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return 0, 0, provider.Errorf(y.ID(), provider.KindNotFound, "no data for %s", symbol)
	}
	r := resp.Chart.Result[0]

	if isLatest {
		if r.Meta.RegularMarketPrice <= 0 {
			return 0, 0, provider.Errorf(y.ID(), provider.KindNotFound, "no market price for %s", symbol)
		}
		return r.Meta.RegularMarketPrice, r.Meta.RegularMarketTime, nil
	}

	price, ts, ok := lastCloseOnOrBefore(r, date)
	if !ok {
		return 0, 0, provider.Errorf(y.ID(), provider.KindNotFound, "no close for %s on %s", symbol, core.FormatDate(date))
	}
	return price, ts, nil
}

// lastCloseOnOrBefore skips bars after date and bars with no close.
func lastCloseOnOrBefore(r chartResult, date time.Time) (float64, int64, bool) {
	if len(r.Indicators.Quote) == 0 {
		return 0, 0, false
	}
	closes := r.Indicators.Quote[0].Close
	end := date.AddDate(0, 0, 1).Unix()

	for i := min(len(r.Timestamp), len(closes)) - 1; i >= 0; i-- {
		if r.Timestamp[i] >= end || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		return *closes[i], r.Timestamp[i], true
	}
	return 0, 0, false
}
