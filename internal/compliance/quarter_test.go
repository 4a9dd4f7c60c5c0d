package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarterOf(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.January, "2025-Q1"},
		{time.March, "2025-Q1"},
		{time.April, "2025-Q2"},
		{time.June, "2025-Q2"},
		{time.July, "2025-Q3"},
		{time.September, "2025-Q3"},
		{time.October, "2025-Q4"},
		{time.December, "2025-Q4"},
	}
	for _, tt := range tests {
		got := QuarterOf(time.Date(2025, tt.month, 15, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, tt.want, got, tt.month.String())
	}
}

func TestParseQuarter(t *testing.T) {
	year, q, err := ParseQuarter("2025-Q4")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 4, q)

	for _, bad := range []string{"", "2025-Q0", "2025-Q5", "2025Q4", "25-Q1", "2025-q1"} {
		_, _, err := ParseQuarter(bad)
		assert.Error(t, err, bad)
	}
}

func TestQuarterStart(t *testing.T) {
	start, err := QuarterStart("2025-Q3", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, "2025-Q3", QuarterOf(start))
	assert.Equal(t, "2025-Q2", QuarterOf(start.Add(-time.Nanosecond)))
}
