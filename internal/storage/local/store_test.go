package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/nisab/internal/core"
)

func testSnapshot(dt core.DataType, date string) *core.Snapshot {
	d, _ := core.ParseDate(date)
	s := &core.Snapshot{
		DataType:   dt,
		Date:       d,
		Base:       core.StorageBase,
		Cadence:    core.CadenceDaily,
		FetchedAt:  time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC),
		ProviderID: "openexchangerates",
	}
	switch dt {
	case core.DataTypeCrypto:
		s.Payload.Assets = map[string]core.CryptoAsset{
			"BTC": {Name: "Bitcoin", Price: 97000.5, Rank: 1},
		}
	default:
		s.Payload.Rates = map[string]float64{"USD": 1, "EUR": 0.92, "AED": 3.6725}
	}
	return s
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		snap := testSnapshot(core.DataTypeFX, "2025-11-17")
		snap.Cadence = core.CadenceWeekly

		inserted, err := s.Put(ctx, snap)
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := s.Get(ctx, snap.Key())
		require.NoError(t, err)
		assert.Equal(t, snap.Payload, got.Payload)
		assert.Equal(t, core.CadenceWeekly, got.Cadence)
		assert.Equal(t, snap.FetchedAt, got.FetchedAt)
		assert.Equal(t, "openexchangerates", got.ProviderID)
		assert.Equal(t, snap.Date, got.Date)
	})

	t.Run("crypto assets", func(t *testing.T) {
		snap := testSnapshot(core.DataTypeCrypto, "2025-10-01")
		_, err := s.Put(ctx, snap)
		require.NoError(t, err)

		got, err := s.Get(ctx, snap.Key())
		require.NoError(t, err)
		assert.Equal(t, snap.Payload.Assets, got.Payload.Assets)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, core.NewKey(core.DataTypeMetals, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, errors.Is(err, core.ErrSnapshotNotFound))

		ok, err := s.Has(ctx, core.NewKey(core.DataTypeMetals, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put never overwrites", func(t *testing.T) {
		first := testSnapshot(core.DataTypeMetals, "2025-09-01")
		_, err := s.Put(ctx, first)
		require.NoError(t, err)

		second := testSnapshot(core.DataTypeMetals, "2025-09-01")
		second.Payload.Rates = map[string]float64{"gold": 1}
		inserted, err := s.Put(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := s.Get(ctx, first.Key())
		require.NoError(t, err)
		assert.Equal(t, first.Payload, got.Payload)
	})

	t.Run("replace overwrites", func(t *testing.T) {
		snap := testSnapshot(core.DataTypeMetals, "2025-08-01")
		_, err := s.Put(ctx, snap)
		require.NoError(t, err)

		snap.Payload.Rates = map[string]float64{"gold": 90.5}
		snap.ProviderID = "goldapi"
		require.NoError(t, s.Replace(ctx, snap))

		got, err := s.Get(ctx, snap.Key())
		require.NoError(t, err)
		assert.Equal(t, 90.5, got.Payload.Rates["gold"])
		assert.Equal(t, "goldapi", got.ProviderID)
	})

	t.Run("coverage", func(t *testing.T) {
		rows, err := s.Coverage(ctx)
		require.NoError(t, err)

		byType := make(map[core.DataType]Coverage)
		for _, r := range rows {
			byType[r.DataType] = r
		}
		metals := byType[core.DataTypeMetals]
		assert.Equal(t, 2, metals.Count)
		assert.Equal(t, "2025-08-01", core.FormatDate(metals.Earliest))
		assert.Equal(t, "2025-09-01", core.FormatDate(metals.Latest))
	})

	t.Run("sync runs", func(t *testing.T) {
		a, ok := s.(Auditor)
		require.True(t, ok, "store should keep an audit log")

		base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		require.NoError(t, a.RecordSyncRun(ctx, SyncRun{
			ID: "run-1", Types: []core.DataType{core.DataTypeFX},
			Start: base.AddDate(0, -1, 0), End: base,
			StartedAt: base, FinishedAt: base.Add(time.Second), Fetched: 3,
		}))
		require.NoError(t, a.RecordSyncRun(ctx, SyncRun{
			ID: "run-2", Forced: true, Types: []core.DataType{core.DataTypeFX, core.DataTypeMetals},
			Start: base.AddDate(0, -1, 0), End: base,
			StartedAt: base.Add(time.Minute), FinishedAt: base.Add(2 * time.Minute), Failed: 1,
		}))

		runs, err := a.SyncRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-2", runs[0].ID)
		assert.True(t, runs[0].Forced)
		assert.Equal(t, []core.DataType{core.DataTypeFX, core.DataTypeMetals}, runs[0].Types)
		assert.Equal(t, 3, runs[1].Fetched)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	snap := testSnapshot(core.DataTypeFX, "2025-12-01")
	_, err := s.Put(ctx, snap)
	require.NoError(t, err)

	got, _ := s.Get(ctx, snap.Key())
	got.Payload.Rates["EUR"] = 99

	again, _ := s.Get(ctx, snap.Key())
	assert.Equal(t, 0.92, again.Payload.Rates["EUR"])
}

func TestMemoryStore_CorruptEntryIsStoreIO(t *testing.T) {
	m := NewMemoryStore()
	key := normalizeKey(core.NewKey(core.DataTypeFX, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)))
	// 0xc1 is never used by msgpack
	m.entries[key.String()] = memEntry{key: key, blob: []byte{0xc1}}

	_, err := m.Get(context.Background(), key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStoreIO))
}

func TestMemoryStore_SyncRunsTrimmed(t *testing.T) {
	s := NewMemoryStore()
	s.maxRuns = 2
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordSyncRun(context.Background(), SyncRun{ID: id}))
	}
	runs, _ := s.SyncRuns(context.Background(), 0)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestCodec_RoundTrip(t *testing.T) {
	snap := testSnapshot(core.DataTypeFX, "2025-10-01")
	b, err := encodeRecord(snap)
	require.NoError(t, err)

	got, err := decodeRecord(snap.Key(), b)
	require.NoError(t, err)

	again, err := encodeRecord(got)
	require.NoError(t, err)
	assert.Equal(t, len(b), len(again))
	assert.Equal(t, snap.Payload, got.Payload)
}
