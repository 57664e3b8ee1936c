package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in      string
		want    DataType
		wantErr bool
	}{
		{"fx", DataTypeFX, false},
		{"METALS", DataTypeMetals, false},
		{" crypto ", DataTypeCrypto, false},
		{"stocks", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDataType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseDataTypes(t *testing.T) {
	all, err := ParseDataTypes("")
	require.NoError(t, err)
	assert.Equal(t, AllDataTypes(), all)

	got, err := ParseDataTypes("crypto,fx,crypto")
	require.NoError(t, err)
	assert.Equal(t, []DataType{DataTypeCrypto, DataTypeFX}, got)

	_, err = ParseDataTypes("fx,bonds")
	assert.Error(t, err)
}

func TestNewKey_NormalisesDate(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	k := NewKey(DataTypeFX, time.Date(2025, 3, 4, 22, 15, 0, 0, loc))

	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), k.Date)
	assert.Equal(t, StorageBase, k.Base)
	assert.Equal(t, "fx/2025-03-04/USD", k.String())
}

func TestPayload_Len(t *testing.T) {
	var p Payload
	assert.True(t, p.IsEmpty())

	p.Rates = map[string]float64{"EUR": 0.9}
	p.Assets = map[string]CryptoAsset{"BTC": {Name: "Bitcoin", Price: 60000, Rank: 1}}
	assert.Equal(t, 2, p.Len())
	assert.False(t, p.IsEmpty())
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 106, DaysBetween(a, b))
	assert.Equal(t, -106, DaysBetween(b, a))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-11-20")
	require.NoError(t, err)
	assert.Equal(t, "2025-11-20", FormatDate(d))

	_, err = ParseDate("20/11/2025")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
