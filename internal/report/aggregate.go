// Package report walks replayed issue history day by day and renders the result.
package report

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/timeline"
)

// Aggregate emits one row per day from the first bucketed day up to, but not
// including, until. On a bucketed day the running set becomes
// (current ∪ enter) − exit, so an issue entering and leaving on the same day is
// absent that day. An empty history yields no rows.
func Aggregate(h *timeline.History, until civil.Date) []domain.DayStat {
	first, ok := h.Buckets.First()
	if !ok {
		return nil
	}

	current := make(map[int]struct{})
	var rows []domain.DayStat

	for day := first; day.Before(until); day = day.AddDays(1) {
		if bucket, ok := h.Buckets[day]; ok {
			for issue := range bucket.Enter {
				current[issue] = struct{}{}
			}
			for issue := range bucket.Exit {
				delete(current, issue)
			}
		}

		row := domain.DayStat{Date: day, Count: len(current)}
		if len(current) > 0 {
			created := make([]time.Time, 0, len(current))
			for issue := range current {
				created = append(created, h.Created[issue])
			}
			age := day.DaysSince(civil.DateOf(MedianTime(created).UTC()))
			row.MedianAgeDays = &age
		}
		rows = append(rows, row)
	}

	return rows
}

// MedianTime returns the element at zero-based index n/2 of the sorted times:
// the middle for odd n, the upper of the two middles for even n. The input is
// not modified. It panics on an empty slice.
func MedianTime(times []time.Time) time.Time {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[len(sorted)/2]
}
