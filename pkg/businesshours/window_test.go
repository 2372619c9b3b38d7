package businesshours_test

import (
	"testing"
	"time"

	"github.com/dukex/journey/pkg/businesshours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_IsOpen(t *testing.T) {
	weekdays := []int{1, 2, 3, 4, 5}

	w, err := businesshours.New(weekdays, "09:00", "17:00", time.UTC)
	require.NoError(t, err)

	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, w.IsOpen(monday.Add(10*time.Hour)))
	assert.True(t, w.IsOpen(monday.Add(9*time.Hour)))
	assert.False(t, w.IsOpen(monday.Add(17*time.Hour)))
	assert.False(t, w.IsOpen(monday.Add(8*time.Hour+59*time.Minute)))
	assert.False(t, w.IsOpen(monday.AddDate(0, 0, 5).Add(10*time.Hour)), "saturday")
}

func TestWindow_IsOpen_Overnight(t *testing.T) {
	w, err := businesshours.New([]int{5}, "22:00", "02:00", time.UTC)
	require.NoError(t, err)

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	assert.True(t, w.IsOpen(friday.Add(23*time.Hour)))
	assert.True(t, w.IsOpen(friday.Add(25*time.Hour)), "saturday 01:00 belongs to friday")
	assert.False(t, w.IsOpen(friday.Add(time.Hour)), "friday 01:00 belongs to thursday")
}

func TestWindow_IsOpen_Timezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	w, err := businesshours.New(nil, "09:00", "17:00", ny)
	require.NoError(t, err)

	// 14:00 UTC is 09:00 in New York in January.
	assert.True(t, w.IsOpen(time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)))
	assert.False(t, w.IsOpen(time.Date(2024, 1, 2, 13, 59, 0, 0, time.UTC)))
}

func TestWindow_NextOpen(t *testing.T) {
	w, err := businesshours.New([]int{1, 2, 3, 4, 5}, "09:00", "17:00", time.UTC)
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"already open", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"early morning", time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
		{"evening", time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)},
		{"friday evening skips weekend", time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.NextOpen(tt.at))
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	later, err := businesshours.NextOccurrence(now, "14:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC), later)

	tomorrow, err := businesshours.NextOccurrence(now, "09:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), tomorrow)

	exact, err := businesshours.NextOccurrence(now, "10:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), exact)

	_, err = businesshours.NextOccurrence(now, "25:00", time.UTC)
	assert.ErrorIs(t, err, businesshours.ErrInvalidClock)
}

func TestResolveLocation(t *testing.T) {
	assert.Equal(t, time.UTC, businesshours.ResolveLocation("", "Not/AZone"))
	assert.Equal(t, "America/Chicago", businesshours.ResolveLocation("", "America/Chicago", "Europe/Paris").String())
}

func TestCalendarDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, businesshours.CalendarDaysBetween(a, b, time.UTC))
	assert.Equal(t, 0, businesshours.CalendarDaysBetween(a, a.Add(30*time.Minute), time.UTC))
}
