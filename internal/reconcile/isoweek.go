package reconcile

import (
	"time"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// CurrentWeek returns the ISO week containing now.
func CurrentWeek(now time.Time) types.WeekRef {
	y, w := now.ISOWeek()
	return types.WeekRef{Year: y, Week: w}
}

// PreviousWeek returns the ISO week before the one containing now. Across a
// year boundary the previous week is the last week of the prior ISO year,
// which may be 52 or 53.
func PreviousWeek(now time.Time) types.WeekRef {
	y, w := now.ISOWeek()
	if w > 1 {
		return types.WeekRef{Year: y, Week: w - 1}
	}
	return types.WeekRef{Year: y - 1, Week: WeeksInYear(y - 1)}
}

// WeeksInYear returns the number of ISO weeks in a year. December 28 always
// falls in the last ISO week of its year.
func WeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
