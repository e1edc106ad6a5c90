package clock

import (
	"time"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// Now current UTC time in the ISO form the record store expects for audit fields
func Now() string {
	return Format(time.Now())
}

func Format(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// MonthKey billing month of the given time as YYYYMM, in UTC
func MonthKey(t time.Time) string {
	return t.UTC().Format("200601")
}
