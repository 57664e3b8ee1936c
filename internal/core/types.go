package core

import (
	"fmt"
	"strings"
	"time"
)

// DataType identifies a family of prices
type DataType string

const (
	DataTypeFX     DataType = "fx"
	DataTypeMetals DataType = "metals"
	DataTypeCrypto DataType = "crypto"
)

// AllDataTypes returns every supported data type in sync order
func AllDataTypes() []DataType {
	return []DataType{DataTypeFX, DataTypeMetals, DataTypeCrypto}
}

// ParseDataType parses a data type name, case-insensitively.
func ParseDataType(s string) (DataType, error) {
	switch dt := DataType(strings.ToLower(strings.TrimSpace(s))); dt {
	case DataTypeFX, DataTypeMetals, DataTypeCrypto:
		return dt, nil
	}
	return "", WrapError(ErrInvalidRequest, fmt.Errorf("unknown data type %q", s))
}

// ParseDataTypes parses a comma-separated list. Empty input means all types.
func ParseDataTypes(s string) ([]DataType, error) {
	if strings.TrimSpace(s) == "" {
		return AllDataTypes(), nil
	}
	seen := make(map[DataType]bool)
	var out []DataType
	for _, part := range strings.Split(s, ",") {
		dt, err := ParseDataType(part)
		if err != nil {
			return nil, err
		}
		if !seen[dt] {
			seen[dt] = true
			out = append(out, dt)
		}
	}
	return out, nil
}

// Cadence is the freshness tier a date is bucketed into
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// SourceTier is the cache tier that answered a request
type SourceTier string

const (
	TierLocal    SourceTier = "local"
	TierRemote   SourceTier = "remote"
	TierUpstream SourceTier = "upstream"
)

// StorageBase is the base currency every snapshot is stored in.
const StorageBase = "USD"

// Key addresses one stored snapshot.
type Key struct {
	DataType DataType
	Date     time.Time
	Base     string
}

// NewKey builds a storage key, normalising the date to a UTC day.
func NewKey(dt DataType, date time.Time) Key {
	return Key{DataType: dt, Date: Day(date), Base: StorageBase}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DataType, FormatDate(k.Date), k.Base)
}

// CryptoAsset is one coin in a crypto snapshot
type CryptoAsset struct {
	Name  string  `json:"name" msgpack:"name"`
	Price float64 `json:"price" msgpack:"price"`
	Rank  int     `json:"rank" msgpack:"rank"`
}

// Payload holds the prices of one snapshot.
// FX and metals use Rates (currency code -> units per base, metal -> price per gram);
// crypto uses Assets keyed by upper-case symbol.
type Payload struct {
	Rates  map[string]float64     `json:"rates,omitempty" msgpack:"rates,omitempty"`
	Assets map[string]CryptoAsset `json:"assets,omitempty" msgpack:"assets,omitempty"`
}

// Len returns the number of priced entries.
func (p Payload) Len() int {
	return len(p.Rates) + len(p.Assets)
}

// IsEmpty reports whether the payload carries no prices.
func (p Payload) IsEmpty() bool {
	return p.Len() == 0
}

// Snapshot is one immutable, dated price record
type Snapshot struct {
	DataType   DataType
	Date       time.Time
	Base       string
	Cadence    Cadence
	Payload    Payload
	FetchedAt  time.Time
	Source     SourceTier
	ProviderID string
	// Estimated marks data from the static fallback table.
	Estimated bool
}

// Key returns the storage key of the snapshot.
func (s *Snapshot) Key() Key {
	return Key{DataType: s.DataType, Date: s.Date, Base: s.Base}
}
