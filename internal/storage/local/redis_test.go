package local

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("NISAB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NISAB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	ns := "nisab_test_" + uuid.NewString()

	s, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Namespace: ns})
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, _ := s.rdb.Keys(ctx, ns+":*").Result()
		if len(keys) > 0 {
			s.rdb.Del(ctx, keys...)
		}
		s.Close()
	})

	runStoreSuite(t, s)
}

func TestRedisStore_Keys(t *testing.T) {
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer s.Close()

	snap := testSnapshot("fx", "2025-11-17")
	assert.Equal(t, "nisab:snap:fx:2025-11-17:USD", s.snapKey(snap.Key()))
	assert.Equal(t, "nisab:idx:metals", s.indexKey("metals"))
	assert.Equal(t, float64(20409), dayScore(snap.Date))
}
