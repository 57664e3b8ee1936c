// internal/api/handler/api/pricing.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/nisab/internal/api/response"
	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/repository"
)

// SnapshotView is the wire form of a snapshot.
type SnapshotView struct {
	DataType   core.DataType               `json:"data_type"`
	Date       string                      `json:"date"`
	Base       string                      `json:"base"`
	Cadence    core.Cadence                `json:"cadence"`
	Source     core.SourceTier             `json:"source"`
	ProviderID *string                     `json:"provider_id"`
	FetchedAt  time.Time                   `json:"fetched_at"`
	Estimated  bool                        `json:"estimated"`
	Rates      map[string]float64          `json:"rates,omitempty"`
	Assets     map[string]core.CryptoAsset `json:"assets,omitempty"`
}

// NewSnapshotView converts a snapshot for output.
func NewSnapshotView(s *core.Snapshot) SnapshotView {
	v := SnapshotView{
		DataType:  s.DataType,
		Date:      core.FormatDate(s.Date),
		Base:      s.Base,
		Cadence:   s.Cadence,
		Source:    s.Source,
		FetchedAt: s.FetchedAt,
		Estimated: s.Estimated,
		Rates:     s.Payload.Rates,
		Assets:    s.Payload.Assets,
	}
	if s.ProviderID != "" {
		id := s.ProviderID
		v.ProviderID = &id
	}
	return v
}

// PricingHandler serves snapshot and cadence lookups.
type PricingHandler struct {
	repo *repository.Repository
	now  func() time.Time
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(repo *repository.Repository) *PricingHandler {
	return &PricingHandler{repo: repo, now: time.Now}
}

// parseDay reads an optional YYYY-MM-DD query parameter.
func parseDay(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrInvalidRequest, err)
	}
	return d, nil
}

func (h *PricingHandler) today(r *http.Request) (time.Time, error) {
	return parseDay(r, "today", core.Today(h.now()))
}

// Get handles GET /api/v1/pricing?type=fx&date=YYYY-MM-DD&base=EUR
func (h *PricingHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("type") == "" {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, errors.New("type is required")))
		return
	}
	dt, err := core.ParseDataType(q.Get("type"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	today, err := h.today(r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	date, err := parseDay(r, "date", today)
	if err != nil {
		response.Fail(w, err)
		return
	}

	snap, err := h.repo.Get(r.Context(), repository.Query{
		DataType: dt,
		Date:     date,
		Base:     q.Get("base"),
		Today:    today,
	})
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, NewSnapshotView(snap))
}

// CadenceView is the wire form of a cadence resolution.
type CadenceView struct {
	Requested  string             `json:"requested"`
	Canonical  string             `json:"canonical"`
	Cadence    core.Cadence       `json:"cadence"`
	AgeDays    int                `json:"age_days"`
	Boundaries cadence.Boundaries `json:"boundaries"`
}

// Cadence handles GET /api/v1/cadence?date=YYYY-MM-DD
func (h *PricingHandler) Cadence(w http.ResponseWriter, r *http.Request) {
	today, err := h.today(r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	date, err := parseDay(r, "date", today)
	if err != nil {
		response.Fail(w, err)
		return
	}

	policy := h.repo.Policy()
	res := policy.Resolve(today, date)
	response.JSON(w, http.StatusOK, CadenceView{
		Requested:  core.FormatDate(res.Requested),
		Canonical:  core.FormatDate(res.Canonical),
		Cadence:    res.Cadence,
		AgeDays:    res.AgeDays,
		Boundaries: policy.Boundaries(today),
	})
}
