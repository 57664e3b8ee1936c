// Package local is the first cache tier: a keyed snapshot table that
// answers lookups without any network I/O.
package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Store persists snapshots keyed by (data type, canonical date, base).
type Store interface {
	// Get returns core.ErrSnapshotNotFound when the key is absent.
	Get(ctx context.Context, key core.Key) (*core.Snapshot, error)

	// Put inserts the snapshot only if its key is absent and reports
	// whether it was written. Existing entries are never overwritten.
	Put(ctx context.Context, snap *core.Snapshot) (bool, error)

	// Replace writes the snapshot unconditionally (forced resync).
	Replace(ctx context.Context, snap *core.Snapshot) error

	Has(ctx context.Context, key core.Key) (bool, error)

	// Coverage summarises stored snapshots per data type.
	Coverage(ctx context.Context) ([]Coverage, error)

	Close() error
}

// Auditor is implemented by stores that keep a sync run log.
type Auditor interface {
	RecordSyncRun(ctx context.Context, run SyncRun) error
	SyncRuns(ctx context.Context, limit int) ([]SyncRun, error)
}

// Coverage is the stored range for one data type.
type Coverage struct {
	DataType core.DataType `json:"data_type"`
	Count    int           `json:"count"`
	Earliest time.Time     `json:"earliest"`
	Latest   time.Time     `json:"latest"`
}

// SyncRun is one audited sync or forced resync.
type SyncRun struct {
	ID         string          `json:"id" msgpack:"id"`
	Forced     bool            `json:"forced" msgpack:"forced"`
	Types      []core.DataType `json:"types" msgpack:"types"`
	Start      time.Time       `json:"start" msgpack:"start"`
	End        time.Time       `json:"end" msgpack:"end"`
	StartedAt  time.Time       `json:"started_at" msgpack:"started_at"`
	FinishedAt time.Time       `json:"finished_at" msgpack:"finished_at"`
	Fetched    int             `json:"fetched" msgpack:"fetched"`
	Cached     int             `json:"cached" msgpack:"cached"`
	Failed     int             `json:"failed" msgpack:"failed"`
	Cancelled  bool            `json:"cancelled" msgpack:"cancelled"`
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config selects and configures a store backend.
type Config struct {
	Driver string
	// DSN is the sqlite file path or the postgres connection string.
	DSN   string
	Redis RedisConfig
}

// Open creates the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case DriverRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown store driver %q", cfg.Driver))
	}
}

func storeErr(op string, err error) error {
	return core.WrapError(core.ErrStoreIO, fmt.Errorf("%s: %w", op, err))
}
