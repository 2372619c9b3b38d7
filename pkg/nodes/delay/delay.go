// Package delay implements the TIME_DELAY node.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/businesshours"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

// Executor completes immediately and reports when the successor is due.
type Executor struct{}

func New() *Executor {
	return &Executor{}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeTimeDelay
}

func (e *Executor) Name() string {
	return "Time Delay"
}

func (e *Executor) Description() string {
	return "Waits a relative amount of time, or until a local time of day, before the next step"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delay_value": map[string]any{
				"type":        "integer",
				"description": "Amount of delay_unit to wait",
				"minimum":     0,
			},
			"delay_unit": map[string]any{
				"type":    "string",
				"enum":    []string{"MINUTES", "HOURS", "DAYS"},
				"default": "MINUTES",
			},
			"delay_at_time": map[string]any{
				"type":        "string",
				"description": "Local time of day (HH:mm) to resume at, in the contact's timezone",
				"pattern":     `^([01]\d|2[0-3]):[0-5]\d$`,
			},
		},
		"examples": []map[string]any{
			{"delay_value": 1, "delay_unit": "DAYS"},
			{"delay_at_time": "09:30"},
			{"delay_value": 2, "delay_unit": "DAYS", "delay_at_time": "10:00"},
		},
	}
}

func (e *Executor) Execute(_ context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.TimeDelayConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	until, err := Until(cfg, in.Now, Location(in.Contact, in.Settings))
	if err != nil {
		return protocol.Result{}, protocol.NewConfigError(in.Node.ID, "invalid delay", err)
	}

	return protocol.Result{
		Outcome:    models.OutcomeWaited,
		DelayUntil: &until,
		Data:       map[string]any{"delay_until": until.Format(time.RFC3339)},
	}, nil
}

// Location is the timezone delays are computed in: the contact's, then the tenant's, then UTC.
func Location(contact *models.Contact, settings *models.TenantSettings) *time.Location {
	var names []string

	if contact != nil {
		names = append(names, contact.Timezone)
	}

	if settings != nil {
		names = append(names, settings.Timezone)
	}

	return businesshours.ResolveLocation(names...)
}

// Until returns when a delay configured by cfg and started at now elapses.
//
// DelayAtTime wins over the relative delay. With a DAYS unit the two combine:
// "2 DAYS at 10:00" resolves to 10:00 local time two calendar days later.
func Until(cfg *models.TimeDelayConfig, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	if cfg.DelayAtTime != "" {
		if cfg.DelayUnit == models.DelayUnitDays && cfg.DelayValue > 0 {
			minutes, err := businesshours.ParseClock(cfg.DelayAtTime)
			if err != nil {
				return time.Time{}, err
			}

			local := now.In(loc)
			at := time.Date(local.Year(), local.Month(), local.Day()+cfg.DelayValue, minutes/60, minutes%60, 0, 0, loc)

			return at.UTC(), nil
		}

		at, err := businesshours.NextOccurrence(now, cfg.DelayAtTime, loc)
		if err != nil {
			return time.Time{}, err
		}

		return at.UTC(), nil
	}

	unit, err := unitDuration(cfg.DelayUnit)
	if err != nil {
		return time.Time{}, err
	}

	if cfg.DelayUnit == models.DelayUnitDays {
		local := now.In(loc)

		return local.AddDate(0, 0, cfg.DelayValue).UTC(), nil
	}

	return now.Add(time.Duration(cfg.DelayValue) * unit).UTC(), nil
}

func unitDuration(unit models.DelayUnit) (time.Duration, error) {
	switch unit {
	case models.DelayUnitMinutes, "":
		return time.Minute, nil
	case models.DelayUnitHours:
		return time.Hour, nil
	case models.DelayUnitDays:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown delay unit %q", unit)
	}
}
