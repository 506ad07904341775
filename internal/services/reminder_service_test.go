package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renovation-service/internal/models"
)

func reminderConstruction(t *testing.T) *models.Construction {
	t.Helper()
	svc := newTestScheduleService()
	startDate := mustDate(t, "2026-03-01")
	return &models.Construction{
		StartDate: &startDate,
		Stages:    models.EncodeStageMap(svc.buildPlan(startDate, nil)),
	}
}

func reminderSettings(days int) *models.UserSetting {
	return &models.UserSetting{
		ReminderDaysBefore: days,
		NotifyProgress:     true,
		NotifyAcceptance:   true,
	}
}

func TestDerive_StageStart(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	// S03 starts 2026-04-01; three days ahead the query date is 2026-03-29
	out := svc.derive(construction, reminderSettings(3), mustDate(t, "2026-03-29"))
	require.Len(t, out, 1)
	assert.Equal(t, "S03", out[0].Stage)
	assert.Equal(t, "木工工程", out[0].StageName)
	assert.Equal(t, ReminderStageStart, out[0].EventType)
	assert.Equal(t, "2026-04-01", out[0].PlannedDate)
	assert.Equal(t, 3, out[0].DaysAhead)
}

func TestDerive_StageAcceptance(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	// S02 ends 2026-03-31; query 2026-03-28 with 3 days ahead
	out := svc.derive(construction, reminderSettings(3), mustDate(t, "2026-03-28"))
	require.Len(t, out, 1)
	assert.Equal(t, "S02", out[0].Stage)
	assert.Equal(t, ReminderStageAcceptance, out[0].EventType)
	assert.Equal(t, "2026-03-31", out[0].PlannedDate)
}

func TestDerive_SettingsGateEventTypes(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	setting := reminderSettings(3)
	setting.NotifyProgress = false
	out := svc.derive(construction, setting, mustDate(t, "2026-03-29"))
	assert.Empty(t, out, "stage_start suppressed when progress notifications are off")

	setting = reminderSettings(3)
	setting.NotifyAcceptance = false
	out = svc.derive(construction, setting, mustDate(t, "2026-03-28"))
	assert.Empty(t, out, "stage_acceptance suppressed when acceptance notifications are off")
}

func TestDerive_DefaultDaysAhead(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	// Zero in settings falls back to the service default of 3
	out := svc.derive(construction, reminderSettings(0), mustDate(t, "2026-03-29"))
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].DaysAhead)
}

func TestDerive_NoMatchReturnsEmptySlice(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	out := svc.derive(construction, reminderSettings(3), mustDate(t, "2026-06-01"))
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDerive_SortedByDateThenStage(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)

	// S00 ends the same day S01 starts minus one; craft a map where one query
	// date matches a start and an end on the same target date
	startDate := mustDate(t, "2026-03-01")
	stages := models.StageMap{
		"S00": {StageKey: "S00", Sequence: 1, Status: "checked", EndDate: "2026-03-10"},
		"S01": {StageKey: "S01", Sequence: 2, Status: "pending", StartDate: "2026-03-10"},
	}
	construction := &models.Construction{
		StartDate: &startDate,
		Stages:    models.EncodeStageMap(stages),
	}

	out := svc.derive(construction, reminderSettings(3), mustDate(t, "2026-03-07"))
	require.Len(t, out, 2)
	assert.Equal(t, "S00", out[0].Stage)
	assert.Equal(t, ReminderStageAcceptance, out[0].EventType)
	assert.Equal(t, "S01", out[1].Stage)
	assert.Equal(t, ReminderStageStart, out[1].EventType)
}

func TestDerive_HonorsCustomDaysAhead(t *testing.T) {
	svc := NewReminderService(nil, nil, nil, nil, 3, nil)
	construction := reminderConstruction(t)

	// S03 starts 2026-04-01; with 7 days ahead the query date is 2026-03-25
	out := svc.derive(construction, reminderSettings(7), mustDate(t, "2026-03-25"))
	require.Len(t, out, 1)
	assert.Equal(t, "S03", out[0].Stage)
	assert.Equal(t, 7, out[0].DaysAhead)

	// The 3-day query date no longer matches
	out = svc.derive(construction, reminderSettings(7), mustDate(t, "2026-03-29"))
	assert.Empty(t, out)
}
