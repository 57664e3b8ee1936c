package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/newthinker/nisab/internal/core"
)

// SQLStore keeps snapshots in a single table on sqlite or postgres.
// Queries are written with ? placeholders and rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

type snapshotRow struct {
	DataType   string `db:"data_type"`
	Date       string `db:"date"`
	Base       string `db:"base"`
	Cadence    string `db:"cadence"`
	Payload    []byte `db:"payload"`
	FetchedAt  int64  `db:"fetched_at"`
	ProviderID string `db:"provider_id"`
}

type coverageRow struct {
	DataType string `db:"data_type"`
	Count    int    `db:"n"`
	Earliest string `db:"earliest"`
	Latest   string `db:"latest"`
}

type syncRunRow struct {
	ID         string `db:"id"`
	Forced     int    `db:"forced"`
	Types      string `db:"types"`
	StartDate  string `db:"start_date"`
	EndDate    string `db:"end_date"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
	Fetched    int    `db:"fetched"`
	Cached     int    `db:"cached"`
	Failed     int    `db:"failed"`
	Cancelled  int    `db:"cancelled"`
}

// OpenSQLite opens (creating if needed) a sqlite database file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("sqlite path is empty"))
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, storeErr("creating data dir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeErr("opening sqlite", err)
	}
	// single writer; sqlite serialises anyway
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	return newSQLStore(ctx, sqlx.NewDb(sqldb, "sqlite3"), sqliteSchema)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("postgres dsn is empty"))
	}
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, storeErr("opening postgres", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeErr("connecting to postgres", err)
	}
	return newSQLStore(ctx, db, postgresSchema)
}

func newSQLStore(ctx context.Context, db *sqlx.DB, schema []string) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		data_type TEXT NOT NULL,
		date TEXT NOT NULL,
		base TEXT NOT NULL,
		cadence TEXT NOT NULL,
		payload BLOB NOT NULL,
		fetched_at INTEGER NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (data_type, date, base)
	);`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		forced INTEGER NOT NULL DEFAULT 0,
		types TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		data_type TEXT NOT NULL,
		date TEXT NOT NULL,
		base TEXT NOT NULL,
		cadence TEXT NOT NULL,
		payload BYTEA NOT NULL,
		fetched_at BIGINT NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (data_type, date, base)
	);`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		forced INTEGER NOT NULL DEFAULT 0,
		types TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		started_at BIGINT NOT NULL,
		finished_at BIGINT NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);`,
}

func (s *SQLStore) migrate(ctx context.Context, schema []string) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("migrate", err)
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key core.Key) (*core.Snapshot, error) {
	key = normalizeKey(key)
	query := s.db.Rebind(`SELECT data_type, date, base, cadence, payload, fetched_at, provider_id
		FROM snapshots WHERE data_type = ? AND date = ? AND base = ?`)

	var row snapshotRow
	err := s.db.GetContext(ctx, &row, query, string(key.DataType), core.FormatDate(key.Date), key.Base)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, storeErr("get "+key.String(), err)
	}

	payload, err := decodePayload(row.Payload)
	if err != nil {
		return nil, storeErr("get "+key.String(), err)
	}
	return &core.Snapshot{
		DataType:   key.DataType,
		Date:       key.Date,
		Base:       key.Base,
		Cadence:    core.Cadence(row.Cadence),
		Payload:    payload,
		FetchedAt:  time.UnixMilli(row.FetchedAt).UTC(),
		ProviderID: row.ProviderID,
	}, nil
}

func (s *SQLStore) row(snap *core.Snapshot) (snapshotRow, error) {
	key := normalizeKey(snap.Key())
	payload, err := encodePayload(snap.Payload)
	if err != nil {
		return snapshotRow{}, err
	}
	return snapshotRow{
		DataType:   string(key.DataType),
		Date:       core.FormatDate(key.Date),
		Base:       key.Base,
		Cadence:    string(snap.Cadence),
		Payload:    payload,
		FetchedAt:  snap.FetchedAt.UnixMilli(),
		ProviderID: snap.ProviderID,
	}, nil
}

const insertSnapshot = `INSERT INTO snapshots (data_type, date, base, cadence, payload, fetched_at, provider_id)
	VALUES (:data_type, :date, :base, :cadence, :payload, :fetched_at, :provider_id)`

func (s *SQLStore) Put(ctx context.Context, snap *core.Snapshot) (bool, error) {
	row, err := s.row(snap)
	if err != nil {
		return false, storeErr("put", err)
	}

	res, err := s.db.NamedExecContext(ctx, insertSnapshot+` ON CONFLICT (data_type, date, base) DO NOTHING`, row)
	if err != nil {
		return false, storeErr("put "+snap.Key().String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("put "+snap.Key().String(), err)
	}
	return n > 0, nil
}

func (s *SQLStore) Replace(ctx context.Context, snap *core.Snapshot) error {
	row, err := s.row(snap)
	if err != nil {
		return storeErr("replace", err)
	}

	_, err = s.db.NamedExecContext(ctx, insertSnapshot+` ON CONFLICT (data_type, date, base) DO UPDATE SET
		cadence = excluded.cadence,
		payload = excluded.payload,
		fetched_at = excluded.fetched_at,
		provider_id = excluded.provider_id`, row)
	if err != nil {
		return storeErr("replace "+snap.Key().String(), err)
	}
	return nil
}

func (s *SQLStore) Has(ctx context.Context, key core.Key) (bool, error) {
	key = normalizeKey(key)
	query := s.db.Rebind(`SELECT COUNT(*) FROM snapshots WHERE data_type = ? AND date = ? AND base = ?`)

	var n int
	if err := s.db.GetContext(ctx, &n, query, string(key.DataType), core.FormatDate(key.Date), key.Base); err != nil {
		return false, storeErr("has "+key.String(), err)
	}
	return n > 0, nil
}

func (s *SQLStore) Coverage(ctx context.Context) ([]Coverage, error) {
	var rows []coverageRow
	err := s.db.SelectContext(ctx, &rows, `SELECT data_type, COUNT(*) AS n, MIN(date) AS earliest, MAX(date) AS latest
		FROM snapshots GROUP BY data_type ORDER BY data_type`)
	if err != nil {
		return nil, storeErr("coverage", err)
	}

	out := make([]Coverage, 0, len(rows))
	for _, r := range rows {
		earliest, _ := core.ParseDate(r.Earliest)
		latest, _ := core.ParseDate(r.Latest)
		out = append(out, Coverage{
			DataType: core.DataType(r.DataType),
			Count:    r.Count,
			Earliest: earliest,
			Latest:   latest,
		})
	}
	return out, nil
}

func (s *SQLStore) RecordSyncRun(ctx context.Context, run SyncRun) error {
	types := make([]string, len(run.Types))
	for i, dt := range run.Types {
		types[i] = string(dt)
	}
	row := syncRunRow{
		ID:         run.ID,
		Forced:     boolInt(run.Forced),
		Types:      strings.Join(types, ","),
		StartDate:  core.FormatDate(run.Start),
		EndDate:    core.FormatDate(run.End),
		StartedAt:  run.StartedAt.UnixMilli(),
		FinishedAt: run.FinishedAt.UnixMilli(),
		Fetched:    run.Fetched,
		Cached:     run.Cached,
		Failed:     run.Failed,
		Cancelled:  boolInt(run.Cancelled),
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO sync_runs
		(id, forced, types, start_date, end_date, started_at, finished_at, fetched, cached, failed, cancelled)
		VALUES (:id, :forced, :types, :start_date, :end_date, :started_at, :finished_at, :fetched, :cached, :failed, :cancelled)`, row)
	if err != nil {
		return storeErr("record sync run", err)
	}
	return nil
}

func (s *SQLStore) SyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = defaultMaxRuns
	}
	query := s.db.Rebind(`SELECT id, forced, types, start_date, end_date, started_at, finished_at,
		fetched, cached, failed, cancelled FROM sync_runs ORDER BY started_at DESC LIMIT ?`)

	var rows []syncRunRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, storeErr("list sync runs", err)
	}

	out := make([]SyncRun, 0, len(rows))
	for _, r := range rows {
		types, _ := core.ParseDataTypes(r.Types)
		start, _ := core.ParseDate(r.StartDate)
		end, _ := core.ParseDate(r.EndDate)
		out = append(out, SyncRun{
			ID:         r.ID,
			Forced:     r.Forced != 0,
			Types:      types,
			Start:      start,
			End:        end,
			StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
			FinishedAt: time.UnixMilli(r.FinishedAt).UTC(),
			Fetched:    r.Fetched,
			Cached:     r.Cached,
			Failed:     r.Failed,
			Cancelled:  r.Cancelled != 0,
		})
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
