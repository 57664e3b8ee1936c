package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/newthinker/nisab/internal/core"
)

const defaultNamespace = "nisab"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// RedisStore keeps msgpack snapshot blobs under one key each, plus a
// sorted set per data type (scored by day number) for coverage.
type RedisStore struct {
	rdb     *redis.Client
	ns      string
	maxRuns int64
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("redis addr is empty"))
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, storeErr("redis ping", err)
	}
	return NewRedisStoreWithClient(rdb, cfg.Namespace), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{rdb: rdb, ns: namespace, maxRuns: defaultMaxRuns}
}

func (r *RedisStore) snapKey(k core.Key) string {
	return fmt.Sprintf("%s:snap:%s:%s:%s", r.ns, k.DataType, core.FormatDate(k.Date), k.Base)
}

func (r *RedisStore) indexKey(dt core.DataType) string {
	return fmt.Sprintf("%s:idx:%s", r.ns, dt)
}

func (r *RedisStore) runsKey() string {
	return r.ns + ":sync_runs"
}

func dayScore(t time.Time) float64 {
	return float64(core.Day(t).Unix() / 86400)
}

func (r *RedisStore) Get(ctx context.Context, key core.Key) (*core.Snapshot, error) {
	key = normalizeKey(key)
	b, err := r.rdb.Get(ctx, r.snapKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, storeErr("get "+key.String(), err)
	}
	snap, err := decodeRecord(key, b)
	if err != nil {
		return nil, storeErr("get "+key.String(), err)
	}
	return snap, nil
}

func (r *RedisStore) Put(ctx context.Context, snap *core.Snapshot) (bool, error) {
	key := normalizeKey(snap.Key())
	blob, err := encodeRecord(snap)
	if err != nil {
		return false, storeErr("put", err)
	}

	ok, err := r.rdb.SetNX(ctx, r.snapKey(key), blob, 0).Result()
	if err != nil {
		return false, storeErr("put "+key.String(), err)
	}
	if ok {
		if err := r.index(ctx, key); err != nil {
			return true, err
		}
	}
	return ok, nil
}

func (r *RedisStore) Replace(ctx context.Context, snap *core.Snapshot) error {
	key := normalizeKey(snap.Key())
	blob, err := encodeRecord(snap)
	if err != nil {
		return storeErr("replace", err)
	}

	if err := r.rdb.Set(ctx, r.snapKey(key), blob, 0).Err(); err != nil {
		return storeErr("replace "+key.String(), err)
	}
	return r.index(ctx, key)
}

func (r *RedisStore) index(ctx context.Context, key core.Key) error {
	z := redis.Z{Score: dayScore(key.Date), Member: core.FormatDate(key.Date) + ":" + key.Base}
	if err := r.rdb.ZAdd(ctx, r.indexKey(key.DataType), z).Err(); err != nil {
		return storeErr("index "+key.String(), err)
	}
	return nil
}

func (r *RedisStore) Has(ctx context.Context, key core.Key) (bool, error) {
	key = normalizeKey(key)
	n, err := r.rdb.Exists(ctx, r.snapKey(key)).Result()
	if err != nil {
		return false, storeErr("has "+key.String(), err)
	}
	return n > 0, nil
}

func (r *RedisStore) Coverage(ctx context.Context) ([]Coverage, error) {
	var out []Coverage
	for _, dt := range core.AllDataTypes() {
		idx := r.indexKey(dt)
		n, err := r.rdb.ZCard(ctx, idx).Result()
		if err != nil {
			return nil, storeErr("coverage", err)
		}
		if n == 0 {
			continue
		}

		first, err := r.rdb.ZRangeWithScores(ctx, idx, 0, 0).Result()
		if err != nil {
			return nil, storeErr("coverage", err)
		}
		last, err := r.rdb.ZRangeWithScores(ctx, idx, -1, -1).Result()
		if err != nil {
			return nil, storeErr("coverage", err)
		}
		if len(first) == 0 || len(last) == 0 {
			continue
		}

		out = append(out, Coverage{
			DataType: dt,
			Count:    int(n),
			Earliest: time.Unix(int64(first[0].Score)*86400, 0).UTC(),
			Latest:   time.Unix(int64(last[0].Score)*86400, 0).UTC(),
		})
	}
	return out, nil
}

func (r *RedisStore) RecordSyncRun(ctx context.Context, run SyncRun) error {
	b, err := msgpack.Marshal(run)
	if err != nil {
		return storeErr("record sync run", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, r.runsKey(), b)
	pipe.LTrim(ctx, r.runsKey(), 0, r.maxRuns-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("record sync run", err)
	}
	return nil
}

// SyncRuns returns the most recent runs first.
func (r *RedisStore) SyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := r.rdb.LRange(ctx, r.runsKey(), 0, stop).Result()
	if err != nil {
		return nil, storeErr("list sync runs", err)
	}

	out := make([]SyncRun, 0, len(items))
	for _, item := range items {
		var run SyncRun
		if err := msgpack.Unmarshal([]byte(item), &run); err != nil {
			return nil, storeErr("list sync runs", err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
