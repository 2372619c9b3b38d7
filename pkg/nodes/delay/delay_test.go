package delay

import (
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cfg  models.TimeDelayConfig
		loc  *time.Location
		want time.Time
	}{
		{
			name: "minutes",
			cfg:  models.TimeDelayConfig{DelayValue: 30, DelayUnit: models.DelayUnitMinutes},
			want: now.Add(30 * time.Minute),
		},
		{
			name: "unit defaults to minutes",
			cfg:  models.TimeDelayConfig{DelayValue: 5},
			want: now.Add(5 * time.Minute),
		},
		{
			name: "hours",
			cfg:  models.TimeDelayConfig{DelayValue: 2, DelayUnit: models.DelayUnitHours},
			want: now.Add(2 * time.Hour),
		},
		{
			name: "one day",
			cfg:  models.TimeDelayConfig{DelayValue: 1, DelayUnit: models.DelayUnitDays},
			want: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "zero delay",
			cfg:  models.TimeDelayConfig{DelayValue: 0, DelayUnit: models.DelayUnitHours},
			want: now,
		},
		{
			name: "at time later today",
			cfg:  models.TimeDelayConfig{DelayAtTime: "14:30"},
			want: time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "at time already passed rolls to tomorrow",
			cfg:  models.TimeDelayConfig{DelayAtTime: "09:00"},
			want: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "at time in contact timezone",
			cfg:  models.TimeDelayConfig{DelayAtTime: "09:00"},
			loc:  newYork,
			want: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "days combined with at time",
			cfg:  models.TimeDelayConfig{DelayValue: 2, DelayUnit: models.DelayUnitDays, DelayAtTime: "08:15"},
			want: time.Date(2024, 1, 3, 8, 15, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Until(&tt.cfg, now, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestUntil_InvalidConfig(t *testing.T) {
	now := time.Now()

	_, err := Until(&models.TimeDelayConfig{DelayValue: 1, DelayUnit: "WEEKS"}, now, time.UTC)
	assert.Error(t, err)

	_, err = Until(&models.TimeDelayConfig{DelayAtTime: "25:00"}, now, time.UTC)
	assert.Error(t, err)
}

func TestExecutor_Execute(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	node := &models.JourneyNode{
		ID:     "delay-1",
		Type:   models.NodeTypeTimeDelay,
		Config: &models.TimeDelayConfig{DelayValue: 1, DelayUnit: models.DelayUnitDays},
	}

	result, err := New().Execute(t.Context(), &protocol.ExecutionInput{
		Now:      now,
		Node:     node,
		Contact:  &models.Contact{ID: "c1"},
		Settings: &models.TenantSettings{Timezone: "UTC"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeWaited, result.Outcome)
	require.NotNil(t, result.DelayUntil)
	assert.True(t, result.DelayUntil.Equal(now.AddDate(0, 0, 1)))
}

func TestExecutor_InvalidConfigIsFatal(t *testing.T) {
	node := &models.JourneyNode{
		ID:     "delay-1",
		Type:   models.NodeTypeTimeDelay,
		Config: &models.TimeDelayConfig{DelayAtTime: "nope"},
	}

	_, err := New().Execute(t.Context(), &protocol.ExecutionInput{Now: time.Now(), Node: node})
	require.Error(t, err)
	assert.True(t, protocol.IsConfigError(err))
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "America/Chicago", Location(&models.Contact{Timezone: "America/Chicago"}, &models.TenantSettings{Timezone: "Europe/Paris"}).String())
	assert.Equal(t, "Europe/Paris", Location(&models.Contact{}, &models.TenantSettings{Timezone: "Europe/Paris"}).String())
	assert.Equal(t, "UTC", Location(nil, nil).String())
}
