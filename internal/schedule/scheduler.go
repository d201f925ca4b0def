// Package schedule distributes a contract's recurring visits across its
// date range.
package schedule

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRange reports a contract end before its start.
	ErrInvalidRange = errors.New("contract end before contract start")
	// ErrInvalidCount reports a visit count below one.
	ErrInvalidCount = errors.New("visit count must be at least 1")
)

// Visit working hours assigned when a date is materialized into an event.
const (
	VisitStartHour = 9
	VisitEndHour   = 17
)

// Schedule produces visitCount dates across [contractStart, contractEnd].
//
// The first date is always the (Friday-adjusted) contract start; for counts
// above one the last date is the (Friday-adjusted) contract end. Interior
// dates advance whole months from the start, spaced approximately but not
// strictly evenly. Dates are not de-duplicated: a window shorter than the
// visit count can yield dates on the same calendar day.
func Schedule(contractStart, contractEnd time.Time, visitCount int) ([]time.Time, error) {
	if visitCount < 1 {
		return nil, ErrInvalidCount
	}
	if contractEnd.Before(contractStart) {
		return nil, ErrInvalidRange
	}

	dates := make([]time.Time, 0, visitCount)
	dates = append(dates, FridayAdjust(contractStart))
	if visitCount == 1 {
		return dates, nil
	}

	totalDays := int(contractEnd.Sub(contractStart).Hours() / 24)
	spanMonths := float64(totalDays) / 30.0
	for i := 1; i <= visitCount-2; i++ {
		months := int(float64(i) * spanMonths / float64(visitCount-1))
		dates = append(dates, FridayAdjust(contractStart.AddDate(0, months, 0)))
	}

	dates = append(dates, FridayAdjust(contractEnd))
	return dates, nil
}

// FridayAdjust shifts a Friday-landing date forward three calendar days to
// the following Monday. The regional weekend falls on Friday.
func FridayAdjust(t time.Time) time.Time {
	if t.Weekday() == time.Friday {
		return t.AddDate(0, 0, 3)
	}
	return t
}

// VisitWindow expands a visit date into its working-hours window.
func VisitWindow(date time.Time) (start, end time.Time) {
	year, month, day := date.Date()
	start = time.Date(year, month, day, VisitStartHour, 0, 0, 0, date.Location())
	end = time.Date(year, month, day, VisitEndHour, 0, 0, 0, date.Location())
	return start, end
}
