// Package dates computes the year/month windows a crawl covers.
package dates

import "time"

// YearRange describes the months of one year to crawl. DayLimit caps the
// calendar day for the last month and is zero when the whole month applies.
type YearRange struct {
	Year     int
	Months   []int
	DayLimit int
}

// Ranges returns one range per year from startYear through ref's year. Past
// years cover all twelve months; the reference year stops at ref's month and
// day. Returns nil when startYear lies beyond the reference year.
func Ranges(startYear int, ref time.Time) []YearRange {
	current := ref.Year()
	if startYear > current {
		return nil
	}

	ranges := make([]YearRange, 0, current-startYear+1)
	for year := startYear; year <= current; year++ {
		if year == current {
			ranges = append(ranges, YearRange{
				Year:     year,
				Months:   monthsThrough(int(ref.Month())),
				DayLimit: ref.Day(),
			})
			continue
		}
		ranges = append(ranges, YearRange{
			Year:   year,
			Months: monthsThrough(12),
		})
	}
	return ranges
}

func monthsThrough(last int) []int {
	months := make([]int, 0, last)
	for m := 1; m <= last; m++ {
		months = append(months, m)
	}
	return months
}
