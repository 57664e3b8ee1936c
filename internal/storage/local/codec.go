package local

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/newthinker/nisab/internal/core"
)

// record is the msgpack blob stored per key. The key fields are not
// repeated inside it.
type record struct {
	Cadence    core.Cadence `msgpack:"cadence"`
	Payload    core.Payload `msgpack:"payload"`
	FetchedAt  int64        `msgpack:"fetched_at"`
	ProviderID string       `msgpack:"provider_id"`
}

func encodePayload(p core.Payload) ([]byte, error) {
	b, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return b, nil
}

func decodePayload(b []byte) (core.Payload, error) {
	var p core.Payload
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return core.Payload{}, fmt.Errorf("decoding payload: %w", err)
	}
	return p, nil
}

func encodeRecord(s *core.Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(record{
		Cadence:    s.Cadence,
		Payload:    s.Payload,
		FetchedAt:  s.FetchedAt.UnixMilli(),
		ProviderID: s.ProviderID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", s.Key(), err)
	}
	return b, nil
}

func decodeRecord(key core.Key, b []byte) (*core.Snapshot, error) {
	var r record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return &core.Snapshot{
		DataType:   key.DataType,
		Date:       key.Date,
		Base:       key.Base,
		Cadence:    r.Cadence,
		Payload:    r.Payload,
		FetchedAt:  time.UnixMilli(r.FetchedAt).UTC(),
		ProviderID: r.ProviderID,
	}, nil
}

// normalizeKey fills the storage base and truncates the date.
func normalizeKey(k core.Key) core.Key {
	if k.Base == "" {
		k.Base = core.StorageBase
	}
	k.Date = core.Day(k.Date)
	return k
}
