package timeline

import (
	"sort"

	"cloud.google.com/go/civil"
)

// Bucket holds the issues entering and leaving qualification on one day.
type Bucket struct {
	Enter map[int]struct{}
	Exit  map[int]struct{}
}

// Buckets maps a calendar day to its bucket. Days without transitions are absent.
type Buckets map[civil.Date]*Bucket

func (b Buckets) bucket(day civil.Date) *Bucket {
	bk, ok := b[day]
	if !ok {
		bk = &Bucket{Enter: make(map[int]struct{}), Exit: make(map[int]struct{})}
		b[day] = bk
	}
	return bk
}

func (b Buckets) enter(day civil.Date, issue int) {
	b.bucket(day).Enter[issue] = struct{}{}
}

func (b Buckets) exit(day civil.Date, issue int) {
	b.bucket(day).Exit[issue] = struct{}{}
}

// Days returns the bucketed days in ascending order.
func (b Buckets) Days() []civil.Date {
	days := make([]civil.Date, 0, len(b))
	for d := range b {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// First returns the earliest bucketed day.
func (b Buckets) First() (civil.Date, bool) {
	days := b.Days()
	if len(days) == 0 {
		return civil.Date{}, false
	}
	return days[0], true
}
