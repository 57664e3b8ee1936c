// Package cadence maps requested dates onto canonical snapshot dates.
//
// Recent dates keep daily precision, older dates collapse to the Monday of
// their week and the oldest to the first of their month. Every caller passes
// "today" explicitly so results are reproducible.
package cadence

import (
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

const (
	DefaultDailyWindowDays  = 30
	DefaultWeeklyWindowDays = 90
)

// EarliestDate is the oldest date sync planning will ever cover.
var EarliestDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Policy holds the tier windows, measured in days of age relative to today.
// Both bounds are inclusive: an age equal to DailyWindowDays is still daily.
type Policy struct {
	DailyWindowDays  int
	WeeklyWindowDays int
}

// DefaultPolicy returns the 30/90 day policy.
func DefaultPolicy() Policy {
	return Policy{
		DailyWindowDays:  DefaultDailyWindowDays,
		WeeklyWindowDays: DefaultWeeklyWindowDays,
	}
}

// Validate checks the windows are ordered.
func (p Policy) Validate() error {
	if p.DailyWindowDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("daily window cannot be negative, got %d", p.DailyWindowDays))
	}
	if p.WeeklyWindowDays < p.DailyWindowDays {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("weekly window (%d) must not be shorter than daily window (%d)",
				p.WeeklyWindowDays, p.DailyWindowDays))
	}
	return nil
}

// Resolution is the outcome of resolving one requested date.
type Resolution struct {
	Cadence   core.Cadence
	Requested time.Time
	Canonical time.Time
	AgeDays   int
}

// Resolve classifies requested relative to today. It never fails.
// Future dates resolve to daily with the date unchanged.
func (p Policy) Resolve(today, requested time.Time) Resolution {
	today = core.Day(today)
	requested = core.Day(requested)
	age := core.DaysBetween(requested, today)

	var c core.Cadence
	switch {
	case age <= p.DailyWindowDays:
		c = core.CadenceDaily
	case age <= p.WeeklyWindowDays:
		c = core.CadenceWeekly
	default:
		c = core.CadenceMonthly
	}

	return Resolution{
		Cadence:   c,
		Requested: requested,
		Canonical: Canonicalize(c, requested),
		AgeDays:   age,
	}
}

// Resolve uses the default policy.
func Resolve(today, requested time.Time) Resolution {
	return DefaultPolicy().Resolve(today, requested)
}

// Canonicalize applies the date transform of a cadence tier.
func Canonicalize(c core.Cadence, d time.Time) time.Time {
	switch c {
	case core.CadenceWeekly:
		return MondayOf(d)
	case core.CadenceMonthly:
		return FirstOfMonth(d)
	default:
		return core.Day(d)
	}
}

// MondayOf returns the Monday on or before d.
func MondayOf(d time.Time) time.Time {
	d = core.Day(d)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// FirstOfMonth returns the first day of d's month.
func FirstOfMonth(d time.Time) time.Time {
	y, m, _ := d.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
