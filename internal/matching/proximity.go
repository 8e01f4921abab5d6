package matching

import (
	"time"

	"github.com/shopspring/decimal"
)

// Proximity and tolerance comparison shared by the Matcher and the Mismatch
// Surveyor. The Matcher passes the caller's MatchingPolicy tolerances, the
// Surveyor passes its fixed audit constants; both go through the same
// functions so the percentage and day-difference semantics cannot drift.

var oneHundred = decimal.NewFromInt(100)

// PercentageDiff returns |authority-book| / authority * 100 as an exact
// decimal. A zero authority value with a non-zero book value counts as full
// deviation; two zero values are identical.
func PercentageDiff(authority, book decimal.Decimal) decimal.Decimal {
	if authority.IsZero() {
		if book.IsZero() {
			return decimal.Zero
		}
		return oneHundred
	}
	return authority.Sub(book).Abs().Div(authority.Abs()).Mul(oneHundred)
}

const secondsPerDay = 86400

// DayDiff returns the absolute whole-day difference between two dates,
// ignoring the time-of-day component. The difference is computed from
// calendar day numbers rather than time.Sub, which saturates (and then
// overflows on negation) for spans beyond ~292 years, such as a zero date
// against a real one.
func DayDiff(a, b time.Time) int {
	days := a.Unix()/secondsPerDay - b.Unix()/secondsPerDay
	if days < 0 {
		days = -days
	}
	return int(days)
}

// ExceedsPercentTolerance reports whether a percentage difference is at or
// beyond the tolerance. The boundary itself counts as a mismatch.
func ExceedsPercentTolerance(diff, tolerance decimal.Decimal) bool {
	return diff.Cmp(tolerance) >= 0
}

// ExceedsDayTolerance reports whether a day difference is at or beyond the
// tolerance. The boundary itself counts as a mismatch.
func ExceedsDayTolerance(dayDiff, toleranceDays int) bool {
	return dayDiff >= toleranceDays
}

// decayScore maps a difference onto [0,1]: full score up to and including the
// tolerance, then a linear falloff reaching zero falloff units past it.
func decayScore(diff, tolerance, falloff float64) float64 {
	if diff <= tolerance {
		return 1.0
	}
	score := 1.0 - (diff-tolerance)/falloff
	if score < 0 {
		return 0
	}
	return score
}
