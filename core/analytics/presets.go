package analytics

import (
	"fmt"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core"
)

// Preset names a dashboard time range. Presets resolve to absolute bounds
// against the clock at call time, so two calls may see slightly different
// windows; dashboards tolerate that, reproducible reports should not use
// presets.
type Preset string

const (
	PresetToday      Preset = "today"
	PresetYesterday  Preset = "yesterday"
	PresetWeek       Preset = "week"
	PresetMonth      Preset = "month"
	PresetLast7Days  Preset = "last7days"
	PresetLast30Days Preset = "last30days"

	// DefaultPreset is used when the caller leaves the preset empty.
	DefaultPreset = PresetLast30Days
)

// Window resolves the preset to [since, until) bounds relative to now.
// Calendar presets (today, yesterday, week, month) align to local midnights;
// rolling presets (last7days, last30days) end at now.
func (p Preset) Window(now time.Time) (since, until time.Time, err error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch p {
	case PresetToday:
		return midnight, midnight.AddDate(0, 0, 1), nil
	case PresetYesterday:
		return midnight.AddDate(0, 0, -1), midnight, nil
	case PresetWeek:
		// ISO week, Monday first.
		offset := (int(now.Weekday()) + 6) % 7
		monday := midnight.AddDate(0, 0, -offset)
		return monday, monday.AddDate(0, 0, 7), nil
	case PresetMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), nil
	case PresetLast7Days:
		return now.AddDate(0, 0, -7), now, nil
	case PresetLast30Days:
		return now.AddDate(0, 0, -30), now, nil
	}

	err = core.NewValidationError(
		fmt.Errorf("unknown time range preset %q", p),
		core.FieldError{Field: "preset", Error: "unknown time range preset"},
	)
	return time.Time{}, time.Time{}, err
}
