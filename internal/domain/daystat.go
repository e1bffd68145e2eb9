package domain

import "cloud.google.com/go/civil"

// DayStat is one row of the daily report.
type DayStat struct {
	Date  civil.Date
	Count int // Issues qualifying at the end of Date
	// MedianAgeDays is the number of days between Date and the creation date of the
	// median qualifying issue. Nil when Count is zero.
	MedianAgeDays *int
}
