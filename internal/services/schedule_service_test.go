package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renovation-service/internal/models"
)

var testDurations = map[string]int{
	"S00": 7, "S01": 14, "S02": 10, "S03": 10, "S04": 7, "S05": 7,
}

func newTestScheduleService() *ScheduleService {
	svc := NewScheduleService(nil, nil, nil, testDurations, nil)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return d
}

func TestBuildPlan_ContiguousWindows(t *testing.T) {
	svc := newTestScheduleService()
	plan := svc.buildPlan(mustDate(t, "2026-03-01"), nil)

	expected := map[string][2]string{
		"S00": {"2026-03-01", "2026-03-07"},
		"S01": {"2026-03-08", "2026-03-21"},
		"S02": {"2026-03-22", "2026-03-31"},
		"S03": {"2026-04-01", "2026-04-10"},
		"S04": {"2026-04-11", "2026-04-17"},
		"S05": {"2026-04-18", "2026-04-24"},
	}
	for stage, window := range expected {
		entry := plan[stage]
		require.NotNil(t, entry, stage)
		assert.Equal(t, window[0], entry.StartDate, "%s start", stage)
		assert.Equal(t, window[1], entry.EndDate, "%s end", stage)
		assert.Equal(t, models.StageStatusPending, entry.Status)
	}

	// Each stage starts the day after the previous one ends
	for i := 1; i < len(models.StageOrder); i++ {
		prevEnd := mustDate(t, plan[models.StageOrder[i-1]].EndDate)
		start := mustDate(t, plan[models.StageOrder[i]].StartDate)
		assert.Equal(t, prevEnd.AddDate(0, 0, 1), start)
	}
}

func TestBuildPlan_DurationOverrides(t *testing.T) {
	svc := newTestScheduleService()
	plan := svc.buildPlan(mustDate(t, "2026-03-01"), map[string]int{"S00": 3})

	assert.Equal(t, "2026-03-03", plan["S00"].EndDate)
	assert.Equal(t, "2026-03-04", plan["S01"].StartDate)
	assert.Equal(t, 3, plan["S00"].DurationDays)
}

func TestComputeProgress(t *testing.T) {
	svc := newTestScheduleService()

	stages := svc.buildPlan(mustDate(t, "2026-03-01"), nil)
	assert.Equal(t, 0, svc.computeProgress(stages))

	// S00 checked (7) + S01 passed (14) out of 55 days → 38
	stages["S00"].Status = models.StageStatusChecked
	stages["S01"].Status = models.StageStatusPassed
	assert.Equal(t, 38, svc.computeProgress(stages))

	// An active stage counts half its weight: +10/2 → 23.6% more
	stages["S02"].Status = models.StageStatusInProgress
	assert.Equal(t, 47, svc.computeProgress(stages))

	// All passed caps at 100
	for _, key := range models.StageOrder {
		stages[key].Status = models.StageStatusPassed
	}
	stages["S00"].Status = models.StageStatusChecked
	assert.Equal(t, 100, svc.computeProgress(stages))
}

func TestComputeProgress_MissingEntriesCountZero(t *testing.T) {
	svc := newTestScheduleService()
	stages := models.StageMap{
		"S00": {StageKey: "S00", Status: models.StageStatusChecked, DurationDays: 7},
	}
	// 7 out of 55 planned days
	assert.Equal(t, 12, svc.computeProgress(stages))
}

func testConstruction(t *testing.T, svc *ScheduleService, start string) *models.Construction {
	t.Helper()
	startDate := mustDate(t, start)
	plan := svc.buildPlan(startDate, nil)
	return &models.Construction{
		StartDate: &startDate,
		Stages:    models.EncodeStageMap(plan),
	}
}

func TestApplyStatus_Interlock(t *testing.T) {
	svc := newTestScheduleService()

	// S01 cannot start before S00 is checked
	construction := testConstruction(t, svc, "2026-03-01")
	_, err := svc.applyStatus(construction, "S01", models.StageStatusInProgress)
	require.Error(t, err)
	conflict, ok := IsConflictError(err)
	require.True(t, ok)
	assert.Equal(t, "请先完成材料进场核对验收", conflict.Message)

	// S02 cannot start before S01 passes
	construction = testConstruction(t, svc, "2026-03-01")
	stages := models.DecodeStageMap(construction.Stages)
	stages["S00"].Status = models.StageStatusChecked
	construction.Stages = models.EncodeStageMap(stages)
	_, err = svc.applyStatus(construction, "S02", models.StageStatusInProgress)
	require.Error(t, err)
	conflict, ok = IsConflictError(err)
	require.True(t, ok)
	assert.Equal(t, "请先完成隐蔽工程验收", conflict.Message)
}

func TestApplyStatus_FirstStageNeverLocked(t *testing.T) {
	svc := newTestScheduleService()
	construction := testConstruction(t, svc, "2026-03-01")

	updated, err := svc.applyStatus(construction, "S00", models.StageStatusChecked)
	require.NoError(t, err)

	stages := models.DecodeStageMap(updated.Stages)
	assert.Equal(t, models.StageStatusChecked, stages["S00"].Status)
	assert.Equal(t, 12, updated.ProgressPercent)
}

func TestApplyStatus_AdvancesPipeline(t *testing.T) {
	svc := newTestScheduleService()
	construction := testConstruction(t, svc, "2026-03-01")

	updated, err := svc.applyStatus(construction, "S00", models.StageStatusChecked)
	require.NoError(t, err)
	updated, err = svc.applyStatus(updated, "S01", models.StageStatusPassed)
	require.NoError(t, err)

	stages := models.DecodeStageMap(updated.Stages)
	require.NotNil(t, stages["S02"], "terminal pass creates the next stage entry")
	assert.Equal(t, models.StageStatusPending, stages["S02"].Status)
	assert.Equal(t, 38, updated.ProgressPercent)
	require.NotNil(t, updated.EstimatedEndDate)
	assert.Equal(t, "2026-04-24", updated.EstimatedEndDate.Format(dateLayout))
}

func TestApplyStatus_BackfillsPlanData(t *testing.T) {
	svc := newTestScheduleService()
	startDate := mustDate(t, "2026-03-01")

	// Stored entry lost its window to a partial write
	stages := models.StageMap{
		"S00": {StageKey: "S00", Status: models.StageStatusPending},
	}
	construction := &models.Construction{
		StartDate: &startDate,
		Stages:    models.EncodeStageMap(stages),
	}

	updated, err := svc.applyStatus(construction, "S00", models.StageStatusInProgress)
	require.NoError(t, err)

	decoded := models.DecodeStageMap(updated.Stages)
	assert.Equal(t, "2026-03-01", decoded["S00"].StartDate)
	assert.Equal(t, "2026-03-07", decoded["S00"].EndDate)
	assert.Equal(t, 7, decoded["S00"].DurationDays)
}

func TestApplyStatus_AllPassedSetsActualEnd(t *testing.T) {
	svc := newTestScheduleService()
	construction := testConstruction(t, svc, "2026-03-01")

	stages := models.DecodeStageMap(construction.Stages)
	stages["S00"].Status = models.StageStatusChecked
	for _, key := range []string{"S01", "S02", "S03", "S04"} {
		stages[key].Status = models.StageStatusPassed
	}
	construction.Stages = models.EncodeStageMap(stages)

	updated, err := svc.applyStatus(construction, "S05", models.StageStatusPassed)
	require.NoError(t, err)
	require.NotNil(t, updated.ActualEndDate)
	assert.Equal(t, "2026-03-01", updated.ActualEndDate.Format(dateLayout))
	assert.Equal(t, 100, updated.ProgressPercent)
}

func TestEmptyView(t *testing.T) {
	v := emptyView()
	assert.False(t, v.HasSchedule)
	assert.Len(t, v.Stages, 6)
	assert.Equal(t, 0, v.ProgressPercent)
	for i, entry := range v.Stages {
		if i == 0 {
			assert.False(t, entry.Locked)
		} else {
			assert.True(t, entry.Locked)
		}
	}
}

func TestStageDuration_Fallback(t *testing.T) {
	svc := NewScheduleService(nil, nil, nil, map[string]int{"S00": 5}, nil)
	assert.Equal(t, 5, svc.stageDuration("S00", nil))
	assert.Equal(t, 7, svc.stageDuration("S01", nil), "unknown stages fall back to a week")
	assert.Equal(t, 9, svc.stageDuration("S00", map[string]int{"S00": 9}))
}
