package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Canonical stage keys, in pipeline order
const (
	StageMaterial     = "S00" // material receipt check
	StageHiddenWorks  = "S01" // plumbing / electrical
	StageMasonry      = "S02" // masonry and tiling
	StageCarpentry    = "S03"
	StagePainting     = "S04"
	StageInstallation = "S05" // installation and handover
)

// StageOrder is the canonical pipeline order
var StageOrder = []string{
	StageMaterial,
	StageHiddenWorks,
	StageMasonry,
	StageCarpentry,
	StagePainting,
	StageInstallation,
}

// StageNames maps canonical keys to user-facing names
var StageNames = map[string]string{
	StageMaterial:     "材料进场核对",
	StageHiddenWorks:  "隐蔽工程",
	StageMasonry:      "泥瓦工程",
	StageCarpentry:    "木工工程",
	StagePainting:     "油漆工程",
	StageInstallation: "安装收尾",
}

// legacyStageKeys maps historical stage identifiers still accepted on input
// to their canonical keys
var legacyStageKeys = map[string]string{
	"material":        StageMaterial,
	"plumbing":        StageHiddenWorks,
	"flooring":        StageMasonry,
	"carpentry":       StageCarpentry,
	"woodwork":        StageCarpentry,
	"painting":        StagePainting,
	"installation":    StageInstallation,
	"soft_furnishing": StageInstallation,
}

// Stage statuses
const (
	StageStatusPending        = "pending"
	StageStatusInProgress     = "in_progress"
	StageStatusNeedRectify    = "need_rectify"
	StageStatusPendingRecheck = "pending_recheck"
	StageStatusChecked        = "checked"
	StageStatusPassed         = "passed"
	StageStatusCompleted      = "completed"
)

var validStageStatuses = map[string]bool{
	StageStatusPending:        true,
	StageStatusInProgress:     true,
	StageStatusNeedRectify:    true,
	StageStatusPendingRecheck: true,
	StageStatusChecked:        true,
	StageStatusPassed:         true,
	StageStatusCompleted:      true,
}

// IsValidStageStatus reports whether s is a known stage status
func IsValidStageStatus(s string) bool {
	return validStageStatuses[s]
}

// NormalizeStageKey maps a canonical or legacy stage identifier to its
// canonical S00..S05 key. Returns "" when the key is unknown.
func NormalizeStageKey(key string) string {
	for _, canonical := range StageOrder {
		if key == canonical {
			return canonical
		}
	}
	if canonical, ok := legacyStageKeys[key]; ok {
		return canonical
	}
	return ""
}

// StageIndex returns the zero-based position of a canonical stage key,
// or -1 when unknown
func StageIndex(key string) int {
	for i, canonical := range StageOrder {
		if key == canonical {
			return i
		}
	}
	return -1
}

// StageEntry is one element of a construction's stage map. Locked is derived
// from the previous stage at serialization time and never persisted.
type StageEntry struct {
	StageKey       string `json:"stage_key"`
	Sequence       int    `json:"sequence"`
	Status         string `json:"status"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
	DurationDays   int    `json:"duration_days,omitempty"`
	AcceptanceDate string `json:"acceptance_date,omitempty"`
	Locked         bool   `json:"locked"`
}

// Passed reports whether the stage has reached its terminal-pass status:
// "checked" for S00, "passed" or "completed" for the rest.
func (e *StageEntry) Passed() bool {
	if e == nil {
		return false
	}
	if e.StageKey == StageMaterial {
		return e.Status == StageStatusChecked
	}
	return e.Status == StageStatusPassed || e.Status == StageStatusCompleted
}

// InProgress reports whether the stage carries half progress weight
func (e *StageEntry) InProgress() bool {
	if e == nil {
		return false
	}
	switch e.Status {
	case StageStatusInProgress, StageStatusNeedRectify, StageStatusPendingRecheck:
		return true
	}
	return false
}

// Clone returns a deep copy of the entry
func (e *StageEntry) Clone() *StageEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// StageMap holds the per-stage entries of a construction, keyed by canonical
// stage key. Entries may be missing for stages not yet planned.
type StageMap map[string]*StageEntry

// Clone returns a deep copy of the map so mutations never alias the persisted
// representation
func (m StageMap) Clone() StageMap {
	out := make(StageMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// DecodeStageMap turns a stored JSONB stages value into a StageMap. It is
// total: a JSON string is parsed as a nested document, non-mapping values and
// corrupt entries degrade to an empty map rather than failing the read.
func DecodeStageMap(raw JSONB) StageMap {
	out := make(StageMap)
	if len(raw) == 0 {
		return out
	}

	value := unwrapJSONValue([]byte(raw))
	mapping, ok := value.(map[string]interface{})
	if !ok {
		return out
	}

	for _, key := range StageOrder {
		inner, exists := mapping[key]
		if !exists {
			continue
		}
		if entry := coerceStageEntry(key, inner); entry != nil {
			out[key] = entry
		}
	}
	return out
}

// EncodeStageMap serializes a StageMap for storage. The derived locked flag
// is stripped before persisting.
func EncodeStageMap(m StageMap) JSONB {
	type storedEntry struct {
		StageKey       string `json:"stage_key"`
		Sequence       int    `json:"sequence"`
		Status         string `json:"status"`
		StartDate      string `json:"start_date,omitempty"`
		EndDate        string `json:"end_date,omitempty"`
		DurationDays   int    `json:"duration_days,omitempty"`
		AcceptanceDate string `json:"acceptance_date,omitempty"`
	}

	stored := make(map[string]storedEntry, len(m))
	for key, e := range m {
		if e == nil {
			continue
		}
		stored[key] = storedEntry{
			StageKey:       key,
			Sequence:       e.Sequence,
			Status:         e.Status,
			StartDate:      e.StartDate,
			EndDate:        e.EndDate,
			DurationDays:   e.DurationDays,
			AcceptanceDate: e.AcceptanceDate,
		}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return JSONB("{}")
	}
	return JSONB(data)
}

// SerializeStages produces the six canonical entries in pipeline order,
// filling missing ones with pending placeholders and computing the locked
// flag from the previous stage.
func SerializeStages(m StageMap) []StageEntry {
	out := make([]StageEntry, 0, len(StageOrder))
	for i, key := range StageOrder {
		entry := m[key]
		if entry == nil {
			entry = &StageEntry{
				StageKey: key,
				Sequence: i + 1,
				Status:   StageStatusPending,
			}
		} else {
			entry = entry.Clone()
			entry.StageKey = key
			if entry.Sequence == 0 {
				entry.Sequence = i + 1
			}
			if entry.Status == "" {
				entry.Status = StageStatusPending
			}
		}

		if i == 0 {
			entry.Locked = false
		} else {
			entry.Locked = !m[StageOrder[i-1]].Passed()
		}
		out = append(out, *entry)
	}
	return out
}

// unwrapJSONValue decodes raw JSON, following one level of string nesting:
// a JSON string value is itself parsed as JSON. Corrupt input yields nil.
func unwrapJSONValue(raw []byte) interface{} {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	if s, ok := value.(string); ok {
		var nested interface{}
		if err := json.Unmarshal([]byte(s), &nested); err != nil {
			return nil
		}
		return nested
	}
	return value
}

// coerceStageEntry converts one stored stage value into a StageEntry,
// tolerating string-nested JSON, numeric strings and datetime-formatted
// dates. Returns nil when the value is beyond repair.
func coerceStageEntry(key string, inner interface{}) *StageEntry {
	if s, ok := inner.(string); ok {
		var nested interface{}
		if err := json.Unmarshal([]byte(s), &nested); err != nil {
			return nil
		}
		inner = nested
	}

	fields, ok := inner.(map[string]interface{})
	if !ok {
		return nil
	}

	entry := &StageEntry{
		StageKey:       key,
		Sequence:       coerceInt(fields["sequence"]),
		Status:         coerceString(fields["status"]),
		StartDate:      coerceDate(fields["start_date"]),
		EndDate:        coerceDate(fields["end_date"]),
		DurationDays:   coerceInt(fields["duration_days"]),
		AcceptanceDate: coerceDate(fields["acceptance_date"]),
	}
	if entry.Status == "" || !IsValidStageStatus(entry.Status) {
		entry.Status = StageStatusPending
	}
	if entry.Sequence == 0 {
		if i := StageIndex(key); i >= 0 {
			entry.Sequence = i + 1
		}
	}
	return entry
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func coerceInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// coerceDate normalizes date values to ISO-8601 date strings. Datetime
// strings are truncated to their date part; unparseable values are dropped.
func coerceDate(v interface{}) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02")
	}
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return ""
}
