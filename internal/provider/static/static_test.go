package static

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_AllTypes(t *testing.T) {
	req := provider.Request{Date: time.Date(2003, 3, 1, 0, 0, 0, 0, time.UTC), Today: time.Now()}

	for _, a := range All() {
		t.Run(string(a.DataType()), func(t *testing.T) {
			assert.Equal(t, provider.IDStatic, a.ID())
			assert.True(t, a.Configured())

			data, err := a.Fetch(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, data.Estimated)
			assert.False(t, data.Payload.IsEmpty())
		})
	}
}

func TestStatic_FXIncludesBase(t *testing.T) {
	data, err := New(core.DataTypeFX).Fetch(context.Background(), provider.Request{Date: time.Now(), Today: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, data.Payload.Rates[core.StorageBase])
}

func TestStatic_ReturnsCopies(t *testing.T) {
	s := New(core.DataTypeMetals)
	first, err := s.Fetch(context.Background(), provider.Request{})
	require.NoError(t, err)
	first.Payload.Rates["gold"] = -1

	second, err := s.Fetch(context.Background(), provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, 85.0, second.Payload.Rates["gold"])
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(core.DataTypeCrypto).Fetch(ctx, provider.Request{})
	require.Error(t, err)
}
