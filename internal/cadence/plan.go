package cadence

import (
	"slices"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Bucket is one canonical snapshot date a range resolves to.
type Bucket struct {
	Cadence core.Cadence
	Date    time.Time
}

// Plan returns the distinct canonical dates that lookups over [start, end]
// would request, in ascending order. Dates before EarliestDate are skipped.
func (p Policy) Plan(start, end, today time.Time) []Bucket {
	start = core.Day(start)
	end = core.Day(end)
	if start.Before(EarliestDate) {
		start = EarliestDate
	}
	if end.Before(start) {
		return nil
	}

	seen := make(map[time.Time]bool)
	var buckets []Bucket
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		res := p.Resolve(today, d)
		if seen[res.Canonical] {
			continue
		}
		seen[res.Canonical] = true
		buckets = append(buckets, Bucket{Cadence: res.Cadence, Date: res.Canonical})
	}

	// A weekly Monday can fall before the first of the month that the
	// monthly tier already produced.
	slices.SortFunc(buckets, func(a, b Bucket) int {
		return a.Date.Compare(b.Date)
	})
	return buckets
}

// Window is an inclusive date range.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Boundaries describes which requested dates fall into each tier.
type Boundaries struct {
	Today   time.Time `json:"today"`
	Daily   Window    `json:"daily"`
	Weekly  Window    `json:"weekly"`
	Monthly Window    `json:"monthly"`
}

// Boundaries returns the tier windows relative to today.
func (p Policy) Boundaries(today time.Time) Boundaries {
	today = core.Day(today)
	return Boundaries{
		Today: today,
		Daily: Window{
			From: today.AddDate(0, 0, -p.DailyWindowDays),
			To:   today,
		},
		Weekly: Window{
			From: today.AddDate(0, 0, -p.WeeklyWindowDays),
			To:   today.AddDate(0, 0, -p.DailyWindowDays-1),
		},
		Monthly: Window{
			From: EarliestDate,
			To:   today.AddDate(0, 0, -p.WeeklyWindowDays-1),
		},
	}
}
