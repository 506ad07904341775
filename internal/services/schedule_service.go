package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	natsclient "renovation-service/internal/nats"
	"renovation-service/internal/models"
	"renovation-service/internal/repository"
)

const dateLayout = "2006-01-02"

// ScheduleView is the serialized construction schedule returned to clients.
// Stages always holds all six entries in canonical order with derived locked
// flags.
type ScheduleView struct {
	HasSchedule      bool                `json:"has_schedule"`
	StartDate        string              `json:"start_date,omitempty"`
	EstimatedEndDate string              `json:"estimated_end_date,omitempty"`
	ActualEndDate    string              `json:"actual_end_date,omitempty"`
	ProgressPercent  int                 `json:"progress_percent"`
	IsDelayed        bool                `json:"is_delayed"`
	DelayDays        int                 `json:"delay_days"`
	Stages           []models.StageEntry `json:"stages"`
}

// ScheduleService is the single source of truth for per-user construction
// state. Every mutation runs inside a transaction holding the per-user row
// lock so concurrent stage updates cannot tear the stage map.
type ScheduleService struct {
	db            *gorm.DB
	constructions *repository.ConstructionRepository
	events        *natsclient.Client
	durations     map[string]int
	logger        *logrus.Entry
	now           func() time.Time
}

// NewScheduleService creates a new schedule service. events may be nil when
// NATS is not configured.
func NewScheduleService(db *gorm.DB, constructions *repository.ConstructionRepository, events *natsclient.Client, durations map[string]int, logger *logrus.Logger) *ScheduleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScheduleService{
		db:            db,
		constructions: constructions,
		events:        events,
		durations:     durations,
		logger:        logger.WithField("component", "schedule"),
		now:           time.Now,
	}
}

// stageDuration returns the configured duration for a stage, falling back to
// a week for unknown keys
func (s *ScheduleService) stageDuration(stage string, overrides map[string]int) int {
	if overrides != nil {
		if d, ok := overrides[stage]; ok && d > 0 {
			return d
		}
	}
	if d, ok := s.durations[stage]; ok && d > 0 {
		return d
	}
	return 7
}

// buildPlan assigns contiguous date windows to all six stages:
// start[i] = end[i-1] + 1 day, end[i] = start[i] + duration - 1
func (s *ScheduleService) buildPlan(startDate time.Time, overrides map[string]int) models.StageMap {
	plan := make(models.StageMap, len(models.StageOrder))
	cursor := startDate
	for i, stage := range models.StageOrder {
		duration := s.stageDuration(stage, overrides)
		end := cursor.AddDate(0, 0, duration-1)
		plan[stage] = &models.StageEntry{
			StageKey:     stage,
			Sequence:     i + 1,
			Status:       models.StageStatusPending,
			StartDate:    cursor.Format(dateLayout),
			EndDate:      end.Format(dateLayout),
			DurationDays: duration,
		}
		cursor = end.AddDate(0, 0, 1)
	}
	return plan
}

// computeProgress applies the weighted progress formula: terminal-pass
// stages count full duration, active stages count half, the rest zero.
func (s *ScheduleService) computeProgress(stages models.StageMap) int {
	var total, weighted float64
	for _, stage := range models.StageOrder {
		entry := stages[stage]
		duration := float64(s.stageDuration(stage, nil))
		if entry != nil && entry.DurationDays > 0 {
			duration = float64(entry.DurationDays)
		}
		total += duration

		switch {
		case entry.Passed():
			weighted += duration
		case entry.InProgress():
			weighted += duration / 2
		}
	}
	if total == 0 {
		return 0
	}
	progress := int(100 * weighted / total)
	if progress > 100 {
		progress = 100
	}
	return progress
}

// today returns the current date truncated to midnight
func (s *ScheduleService) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// view serializes a construction for clients
func (s *ScheduleService) view(c *models.Construction) *ScheduleView {
	stages := models.DecodeStageMap(c.Stages)
	v := &ScheduleView{
		HasSchedule:     true,
		ProgressPercent: c.ProgressPercent,
		IsDelayed:       c.IsDelayed,
		DelayDays:       c.DelayDays,
		Stages:          models.SerializeStages(stages),
	}
	if c.StartDate != nil {
		v.StartDate = c.StartDate.Format(dateLayout)
	}
	if c.EstimatedEndDate != nil {
		v.EstimatedEndDate = c.EstimatedEndDate.Format(dateLayout)
	}
	if c.ActualEndDate != nil {
		v.ActualEndDate = c.ActualEndDate.Format(dateLayout)
	}
	return v
}

// emptyView is returned when the user has no construction yet
func emptyView() *ScheduleView {
	return &ScheduleView{
		HasSchedule: false,
		Stages:      models.SerializeStages(models.StageMap{}),
	}
}

// GetSchedule returns the user's schedule, or an empty shape when none exists
func (s *ScheduleService) GetSchedule(ctx context.Context, userID uuid.UUID) (*ScheduleView, error) {
	construction, err := s.constructions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyView(), nil
		}
		return nil, err
	}
	return s.view(construction), nil
}

// SetStartDate creates or re-plans the construction from the given start
// date. The start date must not be in the past.
func (s *ScheduleService) SetStartDate(ctx context.Context, userID uuid.UUID, startDate time.Time, durations map[string]int) (*ScheduleView, error) {
	startDate = time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, s.today().Location())
	if startDate.Before(s.today()) {
		return nil, NewValidationError("start_date", "开工日期不能早于今天")
	}

	plan := s.buildPlan(startDate, durations)
	lastEnd, _ := time.Parse(dateLayout, plan[models.StageInstallation].EndDate)

	var result *models.Construction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		construction, err := s.constructions.GetForUpdate(ctx, tx, userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			construction = &models.Construction{UserID: userID}
			construction.StartDate = &startDate
			construction.EstimatedEndDate = &lastEnd
			construction.Stages = models.EncodeStageMap(plan)
			if err := s.constructions.Create(ctx, tx, construction); err != nil {
				return err
			}
			result = construction
			return nil
		}

		construction.StartDate = &startDate
		construction.EstimatedEndDate = &lastEnd
		construction.ActualEndDate = nil
		construction.ProgressPercent = 0
		construction.IsDelayed = false
		construction.DelayDays = 0
		construction.Stages = models.EncodeStageMap(plan)
		if err := s.constructions.Save(ctx, tx, construction); err != nil {
			return err
		}
		result = construction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(result), nil
}

// UpdateStageStatus writes a new status into one stage, enforcing the
// sequential interlock, back-filling plan data for missing entries, advancing
// the pipeline on terminal-pass and recomputing progress.
func (s *ScheduleService) UpdateStageStatus(ctx context.Context, userID uuid.UUID, stageKey, newStatus string) (*ScheduleView, error) {
	canonical := models.NormalizeStageKey(stageKey)
	if canonical == "" {
		return nil, NewValidationError("stage", fmt.Sprintf("未知的施工阶段: %s", stageKey))
	}
	if !models.IsValidStageStatus(newStatus) {
		return nil, NewValidationError("status", fmt.Sprintf("未知的阶段状态: %s", newStatus))
	}

	var result *models.Construction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		construction, err := s.constructions.GetForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFoundError("施工排期")
			}
			return err
		}
		if construction.StartDate == nil {
			return NewNotFoundError("施工排期")
		}

		updated, err := s.applyStatus(construction, canonical, newStatus)
		if err != nil {
			return err
		}
		if err := s.constructions.Save(ctx, tx, updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil && s.events.Connected() {
		s.events.PublishStageUpdated(natsclient.StageUpdatedEvent{
			UserID:          userID.String(),
			Stage:           canonical,
			Status:          newStatus,
			ProgressPercent: result.ProgressPercent,
		})
	}
	return s.view(result), nil
}

// applyStatus mutates a deep copy of the construction's stage map and
// recomputes the derived fields. Pure except for the construction argument.
func (s *ScheduleService) applyStatus(construction *models.Construction, stage, newStatus string) (*models.Construction, error) {
	index := models.StageIndex(stage)
	stages := models.DecodeStageMap(construction.Stages).Clone()

	if index > 0 {
		prev := models.StageOrder[index-1]
		if !stages[prev].Passed() {
			return nil, NewConflictError("stage", fmt.Sprintf("请先完成%s验收", models.StageNames[prev]))
		}
	}

	plan := s.buildPlan(*construction.StartDate, nil)
	entry := stages[stage]
	if entry == nil {
		entry = plan[stage].Clone()
		stages[stage] = entry
	} else {
		// Back-fill plan data lost to partial writes
		if entry.StartDate == "" {
			entry.StartDate = plan[stage].StartDate
		}
		if entry.EndDate == "" {
			entry.EndDate = plan[stage].EndDate
		}
		if entry.DurationDays == 0 {
			entry.DurationDays = plan[stage].DurationDays
		}
		if entry.Sequence == 0 {
			entry.Sequence = index + 1
		}
	}
	entry.Status = newStatus

	if entry.Passed() && index < len(models.StageOrder)-1 {
		next := models.StageOrder[index+1]
		if stages[next] == nil {
			stages[next] = plan[next].Clone()
		}
	}

	// Estimated end follows the last known planned end date
	var lastEnd time.Time
	for _, key := range models.StageOrder {
		e := stages[key]
		if e == nil || e.EndDate == "" {
			continue
		}
		if end, err := time.Parse(dateLayout, e.EndDate); err == nil && end.After(lastEnd) {
			lastEnd = end
		}
	}
	if !lastEnd.IsZero() {
		construction.EstimatedEndDate = &lastEnd
	}

	construction.Stages = models.EncodeStageMap(stages)
	construction.ProgressPercent = s.computeProgress(stages)

	allPassed := true
	for _, key := range models.StageOrder {
		if !stages[key].Passed() {
			allPassed = false
			break
		}
	}
	if allPassed && construction.ActualEndDate == nil {
		endDate := s.today()
		construction.ActualEndDate = &endDate
	}
	return construction, nil
}

// ApplyMaterialResult reflects a material check into the S00 slot inside the
// caller's transaction. Creates the construction with today as start date
// when absent; preserves S01-S05 when back-filling a missing S00.
func (s *ScheduleService) ApplyMaterialResult(ctx context.Context, tx *gorm.DB, userID uuid.UUID, pass bool) error {
	newStatus := models.StageStatusChecked
	if !pass {
		newStatus = models.StageStatusNeedRectify
	}

	construction, err := s.constructions.GetForUpdate(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		startDate := s.today()
		plan := s.buildPlan(startDate, nil)
		plan[models.StageMaterial].Status = newStatus
		lastEnd, _ := time.Parse(dateLayout, plan[models.StageInstallation].EndDate)

		construction = &models.Construction{
			UserID:           userID,
			StartDate:        &startDate,
			EstimatedEndDate: &lastEnd,
			Stages:           models.EncodeStageMap(plan),
			ProgressPercent:  s.computeProgress(plan),
		}
		return s.constructions.Create(ctx, tx, construction)
	}

	startDate := s.today()
	if construction.StartDate != nil {
		startDate = *construction.StartDate
	} else {
		construction.StartDate = &startDate
	}

	stages := models.DecodeStageMap(construction.Stages).Clone()
	if stages[models.StageMaterial] == nil {
		stages[models.StageMaterial] = s.buildPlan(startDate, nil)[models.StageMaterial].Clone()
	}
	stages[models.StageMaterial].Status = newStatus

	construction.Stages = models.EncodeStageMap(stages)
	construction.ProgressPercent = s.computeProgress(stages)
	return s.constructions.Save(ctx, tx, construction)
}

// MarkStagePassed is the pipeline's entry point for advancing a stage after
// an analysis passes. Interlock conflicts are reported, not fatal.
func (s *ScheduleService) MarkStagePassed(ctx context.Context, userID uuid.UUID, stage string) error {
	_, err := s.UpdateStageStatus(ctx, userID, stage, models.StageStatusPassed)
	return err
}

// CalibrateStage writes manually observed start/acceptance dates into one
// stage entry. Neither status nor the other stages' windows change.
func (s *ScheduleService) CalibrateStage(ctx context.Context, userID uuid.UUID, stageKey string, manualStart, manualAcceptance *time.Time) (*ScheduleView, error) {
	canonical := models.NormalizeStageKey(stageKey)
	if canonical == "" {
		return nil, NewValidationError("stage", fmt.Sprintf("未知的施工阶段: %s", stageKey))
	}
	if manualStart == nil && manualAcceptance == nil {
		return nil, NewValidationError("dates", "请提供校准日期")
	}

	var result *models.Construction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		construction, err := s.constructions.GetForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFoundError("施工排期")
			}
			return err
		}
		if construction.StartDate == nil {
			return NewNotFoundError("施工排期")
		}

		for _, d := range []*time.Time{manualStart, manualAcceptance} {
			if d != nil && d.Before(*construction.StartDate) {
				return NewValidationError("dates", "校准日期不能早于开工日期")
			}
		}

		stages := models.DecodeStageMap(construction.Stages).Clone()
		entry := stages[canonical]
		if entry == nil {
			entry = s.buildPlan(*construction.StartDate, nil)[canonical].Clone()
			stages[canonical] = entry
		}
		if manualStart != nil {
			entry.StartDate = manualStart.Format(dateLayout)
		}
		if manualAcceptance != nil {
			entry.AcceptanceDate = manualAcceptance.Format(dateLayout)
		}

		construction.Stages = models.EncodeStageMap(stages)
		if err := s.constructions.Save(ctx, tx, construction); err != nil {
			return err
		}
		result = construction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(result), nil
}

// Reset deletes the user's construction
func (s *ScheduleService) Reset(ctx context.Context, userID uuid.UUID) error {
	return s.constructions.DeleteByUserID(ctx, userID)
}
