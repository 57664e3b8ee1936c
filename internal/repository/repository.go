// Package repository answers snapshot lookups through the cache tiers:
// local store, then the shared remote store, then the provider chain.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/storage/local"
)

// Resolver fetches from upstream. *provider.Registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, dt core.DataType, req provider.Request) (*provider.Result, error)
}

// Remote is the shared tier. *remote.Store implements it.
type Remote interface {
	Get(ctx context.Context, dt core.DataType, c core.Cadence, date time.Time) (*core.Snapshot, error)
	Put(ctx context.Context, snap *core.Snapshot) error
}

// Recorder receives tier metrics. *metrics.Registry implements it.
type Recorder interface {
	RecordTierHit(dt core.DataType, tier core.SourceTier)
	RecordRemoteWriteFailure(dt core.DataType)
}

// Query is one snapshot request. Today is required so results never
// depend on the wall clock.
type Query struct {
	DataType core.DataType
	Date     time.Time
	Base     string
	Today    time.Time
}

// Repository is safe for concurrent use.
type Repository struct {
	local     local.Store
	remote    Remote
	providers Resolver
	policy    cadence.Policy
	logger    *zap.Logger
	metrics   Recorder

	dedupe bool
	group  singleflight.Group
}

// Option configures a Repository.
type Option func(*Repository)

// WithRemote enables the shared remote tier.
func WithRemote(r Remote) Option {
	return func(repo *Repository) { repo.remote = r }
}

func WithPolicy(p cadence.Policy) Option {
	return func(repo *Repository) { repo.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(repo *Repository) {
		if l != nil {
			repo.logger = l
		}
	}
}

func WithMetrics(m Recorder) Option {
	return func(repo *Repository) { repo.metrics = m }
}

// WithSingleflight collapses concurrent misses for the same key into
// one upstream fetch.
func WithSingleflight(enabled bool) Option {
	return func(repo *Repository) { repo.dedupe = enabled }
}

// New creates a repository over a local store and a provider chain.
func New(store local.Store, providers Resolver, opts ...Option) *Repository {
	r := &Repository{
		local:     store,
		providers: providers,
		policy:    cadence.DefaultPolicy(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the cadence policy used for lookups.
func (r *Repository) Policy() cadence.Policy {
	return r.policy
}

// Local returns the local tier.
func (r *Repository) Local() local.Store {
	return r.local
}

func (r *Repository) normalize(q Query) (Query, error) {
	dt, err := core.ParseDataType(string(q.DataType))
	if err != nil {
		return q, err
	}
	q.DataType = dt
	if q.Date.IsZero() {
		return q, core.WrapError(core.ErrInvalidRequest, errors.New("date is required"))
	}
	if q.Today.IsZero() {
		return q, core.WrapError(core.ErrInvalidRequest, errors.New("today is required"))
	}
	q.Base = strings.ToUpper(strings.TrimSpace(q.Base))
	if q.Base == "" {
		q.Base = core.StorageBase
	}
	return q, nil
}

// Get returns the snapshot for the query's canonical date. FX snapshots
// are rebased to q.Base; metals and crypto are always USD.
// If every provider fails the error matches core.ErrPricingUnavailable
// and is a *provider.AllProvidersFailedError. Estimated answers are
// returned as snapshots with Estimated set.
func (r *Repository) Get(ctx context.Context, q Query) (*core.Snapshot, error) {
	q, snap, err := r.resolve(ctx, q)
	var est *EstimatedError
	if errors.As(err, &est) {
		snap, err = cloneSnapshot(est.Snapshot), nil
	}
	if err != nil {
		return nil, err
	}

	if q.DataType == core.DataTypeFX && q.Base != core.StorageBase {
		return Rebase(snap, q.Base)
	}
	return snap, nil
}

// Fill is Get for backfills, where an estimate is not a usable answer:
// estimated results come back as *EstimatedError. The snapshot is never
// rebased.
func (r *Repository) Fill(ctx context.Context, q Query) (*core.Snapshot, error) {
	_, snap, err := r.resolve(ctx, q)
	return snap, err
}

func (r *Repository) resolve(ctx context.Context, q Query) (Query, *core.Snapshot, error) {
	q, err := r.normalize(q)
	if err != nil {
		return q, nil, err
	}
	res := r.policy.Resolve(q.Today, q.Date)
	key := core.NewKey(q.DataType, res.Canonical)

	var snap *core.Snapshot
	if r.dedupe {
		snap, err = r.lookupShared(ctx, key, res, q.Today)
	} else {
		snap, err = r.lookup(ctx, key, res, q.Today)
	}
	return q, snap, err
}

func (r *Repository) lookupShared(ctx context.Context, key core.Key, res cadence.Resolution, today time.Time) (*core.Snapshot, error) {
	ch := r.group.DoChan(key.String(), func() (any, error) {
		// detached so one caller's cancellation does not fail the others
		return r.lookup(context.WithoutCancel(ctx), key, res, today)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		return cloneSnapshot(out.Val.(*core.Snapshot)), nil
	}
}

func (r *Repository) lookup(ctx context.Context, key core.Key, res cadence.Resolution, today time.Time) (*core.Snapshot, error) {
	snap, err := r.local.Get(ctx, key)
	switch {
	case err == nil:
		return r.hit(snap, core.TierLocal), nil
	case !errors.Is(err, core.ErrSnapshotNotFound):
		return nil, err
	}

	if snap := r.fromRemote(ctx, key, res); snap != nil {
		return snap, nil
	}

	return r.fromUpstream(ctx, key, res, today)
}

func (r *Repository) hit(snap *core.Snapshot, tier core.SourceTier) *core.Snapshot {
	snap.Source = tier
	// provider_id is only reported for fresh upstream fetches
	snap.ProviderID = ""
	r.recordHit(snap.DataType, tier)
	return snap
}

// fromRemote returns nil on a miss or on any remote failure. A failed
// local write-back is logged and the remote copy is still returned.
func (r *Repository) fromRemote(ctx context.Context, key core.Key, res cadence.Resolution) *core.Snapshot {
	if r.remote == nil {
		return nil
	}
	snap, err := r.remote.Get(ctx, key.DataType, res.Cadence, key.Date)
	if err != nil {
		if !errors.Is(err, core.ErrSnapshotNotFound) {
			r.logger.Warn("remote lookup failed, falling through to providers",
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
		return nil
	}

	if _, err := r.local.Put(ctx, snap); err != nil {
		r.logger.Warn("write-back of remote snapshot failed",
			zap.String("key", key.String()),
			zap.Error(err),
		)
	}
	return r.hit(snap, core.TierRemote)
}

func (r *Repository) fromUpstream(ctx context.Context, key core.Key, res cadence.Resolution, today time.Time) (*core.Snapshot, error) {
	snap, failures, err := r.fetch(ctx, key, res, today)
	if err != nil {
		return nil, err
	}
	if snap.Estimated {
		r.logger.Info("serving estimated prices without caching",
			zap.String("key", key.String()),
			zap.String("provider", snap.ProviderID),
			zap.Int("failed_providers", len(failures)),
		)
		r.recordHit(key.DataType, core.TierUpstream)
		return nil, estimated(snap, failures)
	}

	r.writeRemote(ctx, snap)

	inserted, err := r.local.Put(ctx, snap)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent writer won; the stored value is authoritative
		stored, err := r.local.Get(ctx, key)
		if err == nil {
			return r.hit(stored, core.TierLocal), nil
		}
	}
	r.recordHit(key.DataType, core.TierUpstream)
	return snap, nil
}

// fetch also returns the chain attempts that failed before the answer.
func (r *Repository) fetch(ctx context.Context, key core.Key, res cadence.Resolution, today time.Time) (*core.Snapshot, []*provider.Error, error) {
	result, err := r.providers.Resolve(ctx, key.DataType, provider.Request{
		Date:  key.Date,
		Base:  core.StorageBase,
		Today: core.Day(today),
	})
	if err != nil {
		return nil, nil, err
	}
	return &core.Snapshot{
		DataType:   key.DataType,
		Date:       key.Date,
		Base:       core.StorageBase,
		Cadence:    res.Cadence,
		Payload:    result.Data.Payload,
		FetchedAt:  result.Data.FetchedAt,
		Source:     core.TierUpstream,
		ProviderID: result.ProviderID,
		Estimated:  result.Data.Estimated,
	}, result.Failures, nil
}

// writeRemote uploads snap to the shared tier. Failures are logged and
// counted, never returned.
func (r *Repository) writeRemote(ctx context.Context, snap *core.Snapshot) {
	if r.remote == nil {
		return
	}
	if err := r.remote.Put(ctx, snap); err != nil {
		r.logger.Warn("remote write failed",
			zap.String("key", snap.Key().String()),
			zap.Error(err),
		)
		if r.metrics != nil {
			r.metrics.RecordRemoteWriteFailure(snap.DataType)
		}
	}
}

// Refresh re-fetches the query's canonical snapshot from upstream and
// overwrites the local entry. Estimated results are not written anywhere
// and come back as *EstimatedError.
func (r *Repository) Refresh(ctx context.Context, q Query) (*core.Snapshot, error) {
	q, err := r.normalize(q)
	if err != nil {
		return nil, err
	}
	res := r.policy.Resolve(q.Today, q.Date)
	key := core.NewKey(q.DataType, res.Canonical)

	snap, failures, err := r.fetch(ctx, key, res, q.Today)
	if err != nil {
		return nil, err
	}
	if snap.Estimated {
		return nil, estimated(snap, failures)
	}

	r.writeRemote(ctx, snap)
	if err := r.local.Replace(ctx, snap); err != nil {
		return nil, err
	}
	r.recordHit(key.DataType, core.TierUpstream)
	return snap, nil
}

// Has reports whether the local tier holds the key.
func (r *Repository) Has(ctx context.Context, key core.Key) (bool, error) {
	return r.local.Has(ctx, key)
}

func (r *Repository) recordHit(dt core.DataType, tier core.SourceTier) {
	if r.metrics != nil {
		r.metrics.RecordTierHit(dt, tier)
	}
}
