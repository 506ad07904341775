package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStageKey(t *testing.T) {
	cases := map[string]string{
		"S00":             StageMaterial,
		"S05":             StageInstallation,
		"material":        StageMaterial,
		"plumbing":        StageHiddenWorks,
		"flooring":        StageMasonry,
		"carpentry":       StageCarpentry,
		"woodwork":        StageCarpentry,
		"painting":        StagePainting,
		"installation":    StageInstallation,
		"soft_furnishing": StageInstallation,
		"demolition":      "",
		"":                "",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeStageKey(input), "input %q", input)
	}
}

func TestStageEntryPassed(t *testing.T) {
	// S00 passes only on "checked"
	assert.True(t, (&StageEntry{StageKey: StageMaterial, Status: StageStatusChecked}).Passed())
	assert.False(t, (&StageEntry{StageKey: StageMaterial, Status: StageStatusPassed}).Passed())

	// Other stages pass on "passed" or "completed"
	assert.True(t, (&StageEntry{StageKey: StageHiddenWorks, Status: StageStatusPassed}).Passed())
	assert.True(t, (&StageEntry{StageKey: StageHiddenWorks, Status: StageStatusCompleted}).Passed())
	assert.False(t, (&StageEntry{StageKey: StageHiddenWorks, Status: StageStatusChecked}).Passed())

	var nilEntry *StageEntry
	assert.False(t, nilEntry.Passed())
	assert.False(t, nilEntry.InProgress())
}

func TestStageEntryInProgress(t *testing.T) {
	for _, status := range []string{StageStatusInProgress, StageStatusNeedRectify, StageStatusPendingRecheck} {
		assert.True(t, (&StageEntry{Status: status}).InProgress(), status)
	}
	for _, status := range []string{StageStatusPending, StageStatusPassed, StageStatusChecked} {
		assert.False(t, (&StageEntry{Status: status}).InProgress(), status)
	}
}

func TestDecodeStageMap_Plain(t *testing.T) {
	raw := JSONB(`{"S00":{"stage_key":"S00","sequence":1,"status":"checked","start_date":"2026-03-01","end_date":"2026-03-07","duration_days":7}}`)
	m := DecodeStageMap(raw)
	require.Contains(t, m, StageMaterial)
	assert.Equal(t, StageStatusChecked, m[StageMaterial].Status)
	assert.Equal(t, "2026-03-01", m[StageMaterial].StartDate)
	assert.Equal(t, 7, m[StageMaterial].DurationDays)
}

func TestDecodeStageMap_StringNested(t *testing.T) {
	// Whole document stored as a JSON string
	raw := JSONB(`"{\"S01\":{\"status\":\"in_progress\"}}"`)
	m := DecodeStageMap(raw)
	require.Contains(t, m, StageHiddenWorks)
	assert.Equal(t, StageStatusInProgress, m[StageHiddenWorks].Status)

	// Single entry stored as a JSON string
	raw = JSONB(`{"S02":"{\"status\":\"passed\",\"sequence\":3}"}`)
	m = DecodeStageMap(raw)
	require.Contains(t, m, StageMasonry)
	assert.Equal(t, StageStatusPassed, m[StageMasonry].Status)
}

func TestDecodeStageMap_Degenerate(t *testing.T) {
	for name, raw := range map[string]JSONB{
		"empty":        JSONB(""),
		"null":         JSONB("null"),
		"corrupt":      JSONB("{not json"),
		"array":        JSONB("[1,2,3]"),
		"number":       JSONB("42"),
		"string_junk":  JSONB(`"plain text"`),
		"empty_object": JSONB("{}"),
	} {
		m := DecodeStageMap(raw)
		assert.NotNil(t, m, name)
		assert.Empty(t, m, name)
	}
}

func TestDecodeStageMap_RepairsFields(t *testing.T) {
	// Numeric string sequence, datetime-formatted date, unknown status
	raw := JSONB(`{"S03":{"sequence":"4","status":"weird","start_date":"2026-04-01T00:00:00Z"}}`)
	m := DecodeStageMap(raw)
	require.Contains(t, m, StageCarpentry)
	assert.Equal(t, 4, m[StageCarpentry].Sequence)
	assert.Equal(t, StageStatusPending, m[StageCarpentry].Status)
	assert.Equal(t, "2026-04-01", m[StageCarpentry].StartDate)
}

func TestDecodeStageMap_DropsUnrepairableEntries(t *testing.T) {
	raw := JSONB(`{"S00":{"status":"checked"},"S01":123,"S02":"not json at all"}`)
	m := DecodeStageMap(raw)
	assert.Contains(t, m, StageMaterial)
	assert.NotContains(t, m, StageHiddenWorks)
	assert.NotContains(t, m, StageMasonry)
}

func TestSerializeStages_AlwaysSixEntries(t *testing.T) {
	for _, m := range []StageMap{
		{},
		{StageMaterial: {StageKey: StageMaterial, Status: StageStatusChecked}},
		nil,
	} {
		out := SerializeStages(m)
		require.Len(t, out, len(StageOrder))
		for i, entry := range out {
			assert.Equal(t, StageOrder[i], entry.StageKey)
			assert.Equal(t, i+1, entry.Sequence)
			assert.NotEmpty(t, entry.Status)
		}
	}
}

func TestSerializeStages_LockedDerivation(t *testing.T) {
	m := StageMap{
		StageMaterial:    {StageKey: StageMaterial, Status: StageStatusChecked},
		StageHiddenWorks: {StageKey: StageHiddenWorks, Status: StageStatusPassed},
		StageMasonry:     {StageKey: StageMasonry, Status: StageStatusInProgress},
	}
	out := SerializeStages(m)

	assert.False(t, out[0].Locked, "first stage is never locked")
	assert.False(t, out[1].Locked, "S00 checked unlocks S01")
	assert.False(t, out[2].Locked, "S01 passed unlocks S02")
	assert.True(t, out[3].Locked, "S02 in_progress keeps S03 locked")
	assert.True(t, out[4].Locked)
	assert.True(t, out[5].Locked)
}

func TestEncodeStageMap_RoundTripStripsLocked(t *testing.T) {
	m := StageMap{
		StageMaterial: {
			StageKey:     StageMaterial,
			Sequence:     1,
			Status:       StageStatusChecked,
			StartDate:    "2026-03-01",
			EndDate:      "2026-03-07",
			DurationDays: 7,
			Locked:       true, // must not survive persistence
		},
	}
	decoded := DecodeStageMap(EncodeStageMap(m))
	require.Contains(t, decoded, StageMaterial)
	entry := decoded[StageMaterial]
	assert.Equal(t, StageStatusChecked, entry.Status)
	assert.Equal(t, "2026-03-01", entry.StartDate)
	assert.False(t, entry.Locked)
}
