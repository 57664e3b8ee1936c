// internal/api/handler/api/providers_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/provider/mock"
	"github.com/newthinker/nisab/internal/syncer"
)

func TestStatusHandler_Providers(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeFX: {
			mock.New("openexchangerates", core.DataTypeFX).Unconfigured(),
			mock.New("exchangerateapi", core.DataTypeFX),
		},
	})

	w := httptest.NewRecorder()
	NewStatusHandler(f.registry, f.syncer).Providers(w, httptest.NewRequest("GET", "/api/v1/providers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	list := decodeData(t, w)["providers"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "openexchangerates", first["id"])
	assert.Equal(t, false, first["configured"])
}

func TestStatusHandler_Coverage(t *testing.T) {
	f := newFixture(map[core.DataType][]provider.Adapter{
		core.DataTypeMetals: {mock.New("metals-a", core.DataTypeMetals).Returns(mock.Metals())},
	})
	_, err := f.syncer.SyncRange(context.Background(), syncer.Request{
		Types: []core.DataType{core.DataTypeMetals},
		Start: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC),
		Today: fixedNow,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	NewStatusHandler(f.registry, f.syncer).Coverage(w, httptest.NewRequest("GET", "/api/v1/coverage", nil))

	require.Equal(t, http.StatusOK, w.Code)
	rows := decodeData(t, w)["coverage"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "metals", row["data_type"])
	assert.EqualValues(t, 2, row["count"])
}
