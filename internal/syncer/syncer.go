// Package syncer backfills snapshot ranges and mirrors them to the
// remote tier.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/repository"
	"github.com/newthinker/nisab/internal/storage/local"
)

// State is the lifecycle position of one sync item.
type State string

const (
	StatePending  State = "pending"
	StateFetching State = "fetching"
	StateRetrying State = "retrying"
	StateCached   State = "cached"
	StateFailed   State = "failed"
)

// ReasonCancelled marks items dropped by a cancelled run.
const ReasonCancelled = "cancelled"

// Request selects what a run covers. Empty Types means all data types.
type Request struct {
	Types []core.DataType
	Start time.Time
	End   time.Time
	Today time.Time
}

// Failure is one item that did not end up cached.
type Failure struct {
	DataType core.DataType `json:"data_type"`
	Date     time.Time     `json:"date"`
	Cadence  core.Cadence  `json:"cadence"`
	Attempts int           `json:"attempts"`
	Reason   string        `json:"reason"`
	// Unavailable is set when every provider attempt failed as unavailable,
	// which usually means no credentials are configured.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Report summarises a sync run.
type Report struct {
	RunID         string          `json:"run_id"`
	Forced        bool            `json:"forced"`
	Types         []core.DataType `json:"types"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Planned       int             `json:"planned"`
	Fetched       int             `json:"fetched"`
	AlreadyCached int             `json:"already_cached"`
	Failed        int             `json:"failed"`
	Cancelled     bool            `json:"cancelled"`
	Failures      []Failure       `json:"failures"`
}

// Recorder receives sync metrics. *metrics.Registry implements it.
type Recorder interface {
	RecordSyncItem(dt core.DataType, state string)
	RecordSyncRun(kind string, duration float64)
}

// MirrorTarget is the remote tier. *remote.Store implements it.
type MirrorTarget interface {
	Exists(ctx context.Context, dt core.DataType, c core.Cadence, date time.Time) (bool, error)
	Put(ctx context.Context, snap *core.Snapshot) error
}

type item struct {
	dataType core.DataType
	bucket   cadence.Bucket
	state    State
	attempts int
	reason   string
	// unavailable is set when only unavailable providers were tried
	unavailable bool
	// fromCache is set when the fetch path answered from an existing tier
	fromCache bool
}

// Syncer runs backfills. It holds no per-run state and is safe for
// concurrent use.
type Syncer struct {
	repo    *repository.Repository
	remote  MirrorTarget
	logger  *zap.Logger
	metrics Recorder
	workers int
	retry   *retrier
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithRemote(m MirrorTarget) Option {
	return func(s *Syncer) { s.remote = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m Recorder) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithWorkers bounds how many items are fetched at once.
func WithWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(s *Syncer) { s.retry = newRetrier(cfg) }
}

// New creates a syncer over the repository.
func New(repo *repository.Repository, opts ...Option) *Syncer {
	s := &Syncer{
		repo:    repo,
		logger:  zap.NewNop(),
		workers: 1,
		retry:   newRetrier(RetryConfig{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MirrorEnabled reports whether a remote tier is attached.
func (s *Syncer) MirrorEnabled() bool {
	return s.remote != nil
}

func normalize(req Request) (Request, error) {
	if req.Today.IsZero() {
		return req, core.WrapError(core.ErrInvalidRequest, errors.New("today is required"))
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return req, core.WrapError(core.ErrInvalidRequest, errors.New("start and end are required"))
	}
	req.Start, req.End, req.Today = core.Day(req.Start), core.Day(req.End), core.Day(req.Today)
	if req.End.Before(req.Start) {
		return req, core.WrapError(core.ErrInvalidRequest,
			fmt.Errorf("end %s is before start %s", core.FormatDate(req.End), core.FormatDate(req.Start)))
	}
	if len(req.Types) == 0 {
		req.Types = core.AllDataTypes()
	}
	return req, nil
}

// plan expands the request into one item per distinct canonical key.
func (s *Syncer) plan(req Request) []*item {
	policy := s.repo.Policy()
	var items []*item
	for _, dt := range req.Types {
		for _, b := range policy.Plan(req.Start, req.End, req.Today) {
			items = append(items, &item{dataType: dt, bucket: b, state: StatePending})
		}
	}
	return items
}

// SyncRange fills every canonical snapshot in [Start, End] that the local
// tier does not hold yet. Existing entries are never re-fetched. Item
// failures are recorded in the report and never abort the run. When ctx
// is cancelled no new items start; fetches already running complete and
// the remainder is reported as failed with reason "cancelled".
func (s *Syncer) SyncRange(ctx context.Context, req Request) (*Report, error) {
	return s.run(ctx, req, false)
}

// ForceResync re-fetches every planned item from upstream and overwrites
// local entries. The run is audited with forced=true.
func (s *Syncer) ForceResync(ctx context.Context, req Request) (*Report, error) {
	return s.run(ctx, req, true)
}

func (s *Syncer) run(ctx context.Context, req Request, forced bool) (*Report, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Forced:    forced,
		Types:     req.Types,
		Start:     req.Start,
		End:       req.End,
		StartedAt: time.Now().UTC(),
	}
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.Bool("forced", forced))
	logger.Info("sync started",
		zap.String("start", core.FormatDate(req.Start)),
		zap.String("end", core.FormatDate(req.End)),
		zap.Any("types", req.Types),
	)

	items := s.plan(req)
	report.Planned = len(items)

	if !forced {
		for _, it := range items {
			s.checkCached(ctx, it)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, it := range items {
		if it.state != StatePending {
			continue
		}
		if ctx.Err() != nil {
			it.cancel()
			continue
		}
		g.Go(func() error {
			// a slot may only free up after cancellation
			if ctx.Err() != nil {
				it.cancel()
				return nil
			}
			s.process(ctx, logger, it, req.Today, forced)
			return nil
		})
	}
	_ = g.Wait()

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now().UTC()
	s.summarise(report, items)
	s.audit(ctx, logger, report)

	kind := "sync"
	if forced {
		kind = "resync"
	}
	if s.metrics != nil {
		s.metrics.RecordSyncRun(kind, report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	logger.Info("sync finished",
		zap.Int("planned", report.Planned),
		zap.Int("fetched", report.Fetched),
		zap.Int("already_cached", report.AlreadyCached),
		zap.Int("failed", report.Failed),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// checkCached marks items the local tier already holds.
func (s *Syncer) checkCached(ctx context.Context, it *item) {
	ok, err := s.repo.Has(ctx, core.NewKey(it.dataType, it.bucket.Date))
	switch {
	case err != nil && ctx.Err() != nil:
		it.cancel()
	case err != nil:
		it.state = StateFailed
		it.reason = err.Error()
	case ok:
		it.state = StateCached
		it.fromCache = true
	}
}

func (it *item) cancel() {
	it.state = StateFailed
	it.reason = ReasonCancelled
}

func (s *Syncer) process(ctx context.Context, logger *zap.Logger, it *item, today time.Time, forced bool) {
	// in-flight fetches finish even if the run is cancelled
	fetchCtx := context.WithoutCancel(ctx)
	q := repository.Query{DataType: it.dataType, Date: it.bucket.Date, Today: today}

	it.state = StateFetching
	attempts, err := s.retry.do(ctx, func() error {
		it.state = StateFetching
		if forced {
			_, err := s.repo.Refresh(fetchCtx, q)
			return err
		}
		snap, err := s.repo.Fill(fetchCtx, q)
		if err != nil {
			return err
		}
		it.fromCache = snap.Source == core.TierLocal
		return nil
	}, func(attempt int, err error) {
		it.state = StateRetrying
		logger.Debug("retrying sync item",
			zap.String("data_type", string(it.dataType)),
			zap.String("date", core.FormatDate(it.bucket.Date)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	it.attempts = attempts

	if err != nil {
		it.state = StateFailed
		it.reason = err.Error()
		it.unavailable = onlyUnavailable(err)
		logger.Warn("sync item failed",
			zap.String("data_type", string(it.dataType)),
			zap.String("date", core.FormatDate(it.bucket.Date)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	it.state = StateCached
}

func (s *Syncer) summarise(report *Report, items []*item) {
	report.Failures = []Failure{}
	for _, it := range items {
		switch {
		case it.state == StateCached && it.fromCache:
			report.AlreadyCached++
		case it.state == StateCached:
			report.Fetched++
		default:
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				DataType:    it.dataType,
				Date:        it.bucket.Date,
				Cadence:     it.bucket.Cadence,
				Attempts:    it.attempts,
				Reason:      it.reason,
				Unavailable: it.unavailable,
			})
		}
		if s.metrics != nil {
			state := string(it.state)
			if it.fromCache {
				state = "already_cached"
			}
			s.metrics.RecordSyncItem(it.dataType, state)
		}
	}
}

func (s *Syncer) audit(ctx context.Context, logger *zap.Logger, report *Report) {
	auditor, ok := s.repo.Local().(local.Auditor)
	if !ok {
		return
	}
	err := auditor.RecordSyncRun(context.WithoutCancel(ctx), local.SyncRun{
		ID:         report.RunID,
		Forced:     report.Forced,
		Types:      report.Types,
		Start:      report.Start,
		End:        report.End,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Fetched:    report.Fetched,
		Cached:     report.AlreadyCached,
		Failed:     report.Failed,
		Cancelled:  report.Cancelled,
	})
	if err != nil {
		logger.Warn("failed to record sync run", zap.Error(err))
	}
}

func onlyUnavailable(err error) bool {
	var all *provider.AllProvidersFailedError
	if !errors.As(err, &all) || len(all.Failures) == 0 {
		return false
	}
	for _, f := range all.Failures {
		if f.Kind != provider.KindUnavailable {
			return false
		}
	}
	return true
}

// Actionable counts failures that are not explained by missing providers.
func (r *Report) Actionable() int {
	n := 0
	for _, f := range r.Failures {
		if !f.Unavailable {
			n++
		}
	}
	return n
}

// Runs returns the most recent audited runs, newest first.
func (s *Syncer) Runs(ctx context.Context, limit int) ([]local.SyncRun, error) {
	auditor, ok := s.repo.Local().(local.Auditor)
	if !ok {
		return nil, nil
	}
	return auditor.SyncRuns(ctx, limit)
}

// Coverage reports what the local tier holds per data type.
func (s *Syncer) Coverage(ctx context.Context) ([]local.Coverage, error) {
	return s.repo.Local().Coverage(ctx)
}
