package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthKey(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"january", time.Date(2026, time.January, 3, 10, 0, 0, 0, time.UTC), "202601"},
		{"december", time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC), "202512"},
		{"offset zone rolls to utc", time.Date(2026, time.March, 1, 1, 0, 0, 0, time.FixedZone("CST", 8*3600)), "202602"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MonthKey(tc.in))
		})
	}
}

func TestFormat(t *testing.T) {
	ts := time.Date(2026, time.October, 15, 8, 30, 0, 123000000, time.UTC)
	assert.Equal(t, "2026-10-15T08:30:00.123Z", Format(ts))
}
