// internal/api/handler/api/sync.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/api/job"
	"github.com/newthinker/nisab/internal/api/response"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/syncer"
)

const (
	syncTimeout = 30 * time.Minute

	JobSync   = "sync"
	JobResync = "resync"
)

// SyncRequest is the request body for starting a sync.
type SyncRequest struct {
	Types []string `json:"types"`
	Start string   `json:"start"`
	End   string   `json:"end"`
	Force bool     `json:"force"`
}

// JobGauge receives the number of running jobs. *metrics.Registry implements it.
type JobGauge interface {
	SetJobsActive(jobType string, count int)
}

// SyncHandler runs sync jobs in the background.
type SyncHandler struct {
	jobs   *job.Store
	syncer *syncer.Syncer
	gauge  JobGauge
	logger *zap.Logger
	now    func() time.Time

	// base is cancelled on shutdown so running jobs stop taking items
	base   context.Context
	cancel context.CancelFunc
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(jobs *job.Store, s *syncer.Syncer, gauge JobGauge, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncHandler{
		jobs:   jobs,
		syncer: s,
		gauge:  gauge,
		logger: logger,
		now:    time.Now,
		base:   ctx,
		cancel: cancel,
	}
}

// Close cancels running jobs.
func (h *SyncHandler) Close() {
	h.cancel()
}

func (h *SyncHandler) parse(body SyncRequest) (syncer.Request, error) {
	var req syncer.Request
	types, err := core.ParseDataTypes(strings.Join(body.Types, ","))
	if err != nil {
		return req, err
	}
	if body.Start == "" || body.End == "" {
		return req, core.WrapError(core.ErrInvalidRequest, errors.New("start and end are required"))
	}
	start, err := core.ParseDate(body.Start)
	if err != nil {
		return req, core.WrapError(core.ErrInvalidRequest, err)
	}
	end, err := core.ParseDate(body.End)
	if err != nil {
		return req, core.WrapError(core.ErrInvalidRequest, err)
	}
	if end.Before(start) {
		return req, core.WrapError(core.ErrInvalidRequest, errors.New("end is before start"))
	}
	return syncer.Request{Types: types, Start: start, End: end, Today: core.Today(h.now())}, nil
}

// Create handles POST /api/v1/sync and starts a job.
func (h *SyncHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}
	req, err := h.parse(body)
	if err != nil {
		response.Fail(w, err)
		return
	}

	jobType := JobSync
	if body.Force {
		jobType = JobResync
	}
	j := h.jobs.Create(jobType, body)
	h.updateGauge(jobType)

	go h.run(j.ID, jobType, req, body.Force)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (h *SyncHandler) run(jobID, jobType string, req syncer.Request, force bool) {
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(h.base, syncTimeout)
	defer cancel()

	var report *syncer.Report
	var err error
	if force {
		report, err = h.syncer.ForceResync(ctx, req)
	} else {
		report, err = h.syncer.SyncRange(ctx, req)
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		if err != nil {
			j.Status = job.StatusFailed
			j.Error = core.WrapError(core.ErrSyncCancelled, err)
			var ce *core.Error
			if errors.As(err, &ce) {
				j.Error = ce
			}
			return
		}
		j.Status = job.StatusComplete
		j.Result = report
		if report.Cancelled {
			j.Error = core.ErrSyncCancelled
		}
	})
	h.updateGauge(jobType)

	if err != nil {
		h.logger.Error("sync job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (h *SyncHandler) updateGauge(jobType string) {
	if h.gauge != nil {
		h.gauge.SetJobsActive(jobType, h.jobs.Active(jobType))
	}
}

// GetStatus handles GET /api/v1/sync/{id}
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, j)
}

// Runs handles GET /api/v1/sync/runs?limit=N
func (h *SyncHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.Fail(w, core.WrapError(core.ErrInvalidRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	runs, err := h.syncer.Runs(r.Context(), limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}
