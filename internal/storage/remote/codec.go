package remote

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// FormatVersion is written into every object.
const FormatVersion = "1.0"

type document struct {
	Version       string          `json:"version"`
	Type          core.DataType   `json:"type"`
	Cadence       core.Cadence    `json:"cadence"`
	EffectiveDate string          `json:"effective_date"`
	Base          string          `json:"base"`
	Source        string          `json:"source,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Data          json.RawMessage `json:"data"`
}

// Encode serialises a snapshot as gzip-compressed JSON.
func Encode(snap *core.Snapshot) ([]byte, error) {
	var data any = snap.Payload.Rates
	if snap.DataType == core.DataTypeCrypto {
		data = snap.Payload.Assets
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding data: %w", err)
	}

	base := snap.Base
	if base == "" {
		base = core.StorageBase
	}
	doc := document{
		Version:       FormatVersion,
		Type:          snap.DataType,
		Cadence:       snap.Cadence,
		EffectiveDate: core.FormatDate(snap.Date),
		Base:          base,
		Source:        string(core.TierUpstream),
		Provider:      snap.ProviderID,
		FetchedAt:     snap.FetchedAt.UTC(),
		Data:          raw,
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses an object. Plain JSON without gzip framing is accepted
// for objects uploaded by hand.
func Decode(b []byte) (*core.Snapshot, error) {
	var r io.Reader = bytes.NewReader(b)
	if len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	dt, err := core.ParseDataType(string(doc.Type))
	if err != nil {
		return nil, err
	}
	date, err := core.ParseDate(doc.EffectiveDate)
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, errors.New("document has no data")
	}

	snap := &core.Snapshot{
		DataType:   dt,
		Date:       date,
		Base:       doc.Base,
		Cadence:    doc.Cadence,
		FetchedAt:  doc.FetchedAt.UTC(),
		ProviderID: doc.Provider,
	}
	if snap.Base == "" {
		snap.Base = core.StorageBase
	}
	if dt == core.DataTypeCrypto {
		err = json.Unmarshal(doc.Data, &snap.Payload.Assets)
	} else {
		err = json.Unmarshal(doc.Data, &snap.Payload.Rates)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return snap, nil
}
