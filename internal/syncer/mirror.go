package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/core"
)

// MirrorReport summarises a local-to-remote copy.
type MirrorReport struct {
	Planned       int       `json:"planned"`
	Uploaded      int       `json:"uploaded"`
	AlreadyRemote int       `json:"already_remote"`
	MissingLocal  int       `json:"missing_local"`
	Failed        int       `json:"failed"`
	Cancelled     bool      `json:"cancelled"`
	Failures      []Failure `json:"failures"`
}

// Mirror uploads local snapshots in the range that the remote tier lacks.
// Objects already in the remote tier are left untouched.
func (s *Syncer) Mirror(ctx context.Context, req Request) (*MirrorReport, error) {
	if s.remote == nil {
		return nil, core.WrapError(core.ErrConfigInvalid, errors.New("remote tier is not enabled"))
	}
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	items := s.plan(req)
	report := &MirrorReport{Planned: len(items), Failures: []Failure{}}
	start := time.Now()

	fail := func(it *item, reason string) {
		report.Failed++
		report.Failures = append(report.Failures, Failure{
			DataType: it.dataType,
			Date:     it.bucket.Date,
			Cadence:  it.bucket.Cadence,
			Reason:   reason,
		})
	}

	local := s.repo.Local()
	for _, it := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			fail(it, ReasonCancelled)
			continue
		}

		snap, err := local.Get(ctx, core.NewKey(it.dataType, it.bucket.Date))
		if errors.Is(err, core.ErrSnapshotNotFound) {
			report.MissingLocal++
			continue
		}
		if err != nil {
			fail(it, err.Error())
			continue
		}

		// file under today's cadence so remote lookups find it
		snap.Cadence = it.bucket.Cadence
		exists, err := s.remote.Exists(ctx, snap.DataType, snap.Cadence, snap.Date)
		if err != nil {
			fail(it, err.Error())
			continue
		}
		if exists {
			report.AlreadyRemote++
			continue
		}

		if err := s.remote.Put(ctx, snap); err != nil {
			fail(it, err.Error())
			continue
		}
		report.Uploaded++
	}

	if s.metrics != nil {
		s.metrics.RecordSyncRun("mirror", time.Since(start).Seconds())
	}
	s.logger.Info("mirror finished",
		zap.Int("planned", report.Planned),
		zap.Int("uploaded", report.Uploaded),
		zap.Int("already_remote", report.AlreadyRemote),
		zap.Int("missing_local", report.MissingLocal),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
