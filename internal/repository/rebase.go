package repository

import (
	"fmt"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/newthinker/nisab/internal/core"
)

// rebasePlaces bounds the precision of derived cross rates.
const rebasePlaces = 8

// Rebase converts a USD-based FX snapshot to base. Every rate becomes
// rate / rate(base); the base itself is exactly 1. The input is not
// modified.
func Rebase(snap *core.Snapshot, base string) (*core.Snapshot, error) {
	if snap.DataType != core.DataTypeFX {
		return nil, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("%s snapshots cannot be rebased", snap.DataType))
	}
	out := cloneSnapshot(snap)
	if base == snap.Base {
		return out, nil
	}

	pivot, ok := snap.Payload.Rates[base]
	if !ok || pivot <= 0 {
		return nil, core.WrapError(core.ErrInvalidRequest,
			fmt.Errorf("base currency %s not in %s snapshot", base, core.FormatDate(snap.Date)))
	}
	div := decimal.NewFromFloat(pivot)

	rates := make(map[string]float64, len(snap.Payload.Rates))
	for code, rate := range snap.Payload.Rates {
		if code == base {
			rates[code] = 1
			continue
		}
		rates[code] = decimal.NewFromFloat(rate).DivRound(div, rebasePlaces).InexactFloat64()
	}
	out.Base = base
	out.Payload.Rates = rates
	return out, nil
}

func cloneSnapshot(s *core.Snapshot) *core.Snapshot {
	out := *s
	out.Payload = core.Payload{
		Rates:  maps.Clone(s.Payload.Rates),
		Assets: maps.Clone(s.Payload.Assets),
	}
	return &out
}
