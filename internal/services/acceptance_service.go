package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"renovation-service/internal/clients"
	"renovation-service/internal/middleware"
	"renovation-service/internal/models"
	natsclient "renovation-service/internal/nats"
	"renovation-service/internal/notify"
	"renovation-service/internal/repository"
	"renovation-service/internal/workers"
)

// AcceptanceService drives the stage inspection pipeline: photo submission,
// async AI analysis, severity classification, and the rectify/recheck loop.
type AcceptanceService struct {
	acceptances *repository.AcceptanceRepository
	photos      *repository.PhotoRepository
	messages    *repository.MessageRepository
	schedule    *ScheduleService
	entitlement *EntitlementService
	mapper      *PayloadMapper
	analyzer    clients.AIAnalyzer
	pool        *workers.Pool
	notifier    notify.Notifier
	events      *natsclient.Client
	logger      *logrus.Entry
}

// NewAcceptanceService creates a new acceptance service. events may be nil.
func NewAcceptanceService(
	acceptances *repository.AcceptanceRepository,
	photos *repository.PhotoRepository,
	messages *repository.MessageRepository,
	schedule *ScheduleService,
	entitlement *EntitlementService,
	mapper *PayloadMapper,
	analyzer clients.AIAnalyzer,
	pool *workers.Pool,
	notifier notify.Notifier,
	events *natsclient.Client,
	logger *logrus.Logger,
) *AcceptanceService {
	if logger == nil {
		logger = logrus.New()
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &AcceptanceService{
		acceptances: acceptances,
		photos:      photos,
		messages:    messages,
		schedule:    schedule,
		entitlement: entitlement,
		mapper:      mapper,
		analyzer:    analyzer,
		pool:        pool,
		notifier:    notifier,
		events:      events,
		logger:      logger.WithField("component", "acceptance"),
	}
}

// Submit creates an analysis in analyzing state and dispatches the AI task
func (s *AcceptanceService) Submit(ctx context.Context, userID uuid.UUID, stageKey string, fileURLs []string) (*models.AcceptanceAnalysis, error) {
	canonical := models.NormalizeStageKey(stageKey)
	if canonical == "" {
		return nil, NewValidationError("stage", fmt.Sprintf("未知的施工阶段: %s", stageKey))
	}
	if canonical == models.StageMaterial {
		return nil, NewValidationError("stage", "材料进场阶段请使用材料核对流程")
	}
	if len(fileURLs) == 0 {
		return nil, NewValidationError("file_urls", "请至少上传一张验收照片")
	}

	analysis := &models.AcceptanceAnalysis{
		UserID:   userID,
		Stage:    canonical,
		FileURLs: models.MustNewJSONB(fileURLs),
		Status:   models.AnalysisStatusAnalyzing,
		Severity: models.SeverityNone,
	}
	if err := s.acceptances.Create(ctx, analysis); err != nil {
		return nil, err
	}

	if err := s.photos.CreateBatch(ctx, userID, canonical, fileURLs); err != nil {
		s.logger.WithError(err).Warn("Failed to record acceptance photos")
	}

	if err := s.dispatch(ctx, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// dispatch enqueues the analysis task; on queue rejection the record flips to
// failed so the client can resubmit
func (s *AcceptanceService) dispatch(ctx context.Context, analysis *models.AcceptanceAnalysis) error {
	err := s.pool.Submit(workers.Task{
		Kind:     workers.TaskAcceptance,
		TargetID: analysis.ID,
		UserID:   analysis.UserID,
		Stage:    analysis.Stage,
		FileURLs: analysis.FileURLs.StringSlice(),
	})
	if err == nil {
		return nil
	}

	s.logger.WithError(err).WithField("analysis_id", analysis.ID).Warn("Failed to enqueue analysis task")
	analysis.Status = models.AnalysisStatusFailed
	if saveErr := s.acceptances.Save(ctx, analysis); saveErr != nil {
		s.logger.WithError(saveErr).Error("Failed to mark analysis failed after enqueue rejection")
	}
	return NewUnavailableError("analysis", "分析服务繁忙，请稍后重试")
}

// HandleTask is the worker pool handler for acceptance analysis tasks
func (s *AcceptanceService) HandleTask(ctx context.Context, task workers.Task) {
	payload, err := s.analyzer.AnalyzeAcceptance(ctx, task.Stage, task.FileURLs)
	if err != nil {
		s.logger.WithError(err).WithField("analysis_id", task.TargetID).Warn("Acceptance analysis failed")
		s.markFailed(ctx, task.TargetID)
		middleware.RecordAnalysisTask(string(task.Kind), "failed")
		return
	}
	s.OnAnalysisComplete(ctx, task.TargetID, payload)
	middleware.RecordAnalysisTask(string(task.Kind), "completed")
}

// markFailed flips a live analysis to failed and posts a retry message
func (s *AcceptanceService) markFailed(ctx context.Context, analysisID uuid.UUID) {
	analysis, err := s.acceptances.GetLive(ctx, analysisID)
	if err != nil {
		// Deleted while in flight; nothing to do
		return
	}
	analysis.Status = models.AnalysisStatusFailed
	if err := s.acceptances.Save(ctx, analysis); err != nil {
		s.logger.WithError(err).Error("Failed to persist failed analysis")
		return
	}
	s.postMessage(ctx, analysis.UserID, models.MessageCategoryAcceptance,
		"验收分析失败",
		fmt.Sprintf("%s验收分析失败，请重新提交", models.StageNames[analysis.Stage]),
		fmt.Sprintf("/acceptance/%s", analysis.ID))
	s.publishCompleted(analysis)
}

// OnAnalysisComplete persists the mapped AI result and feeds the outcome
// back into the schedule, messages and entitlements. No-ops when the
// analysis was deleted while the task ran.
func (s *AcceptanceService) OnAnalysisComplete(ctx context.Context, analysisID uuid.UUID, payload map[string]interface{}) {
	analysis, err := s.acceptances.GetLive(ctx, analysisID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithError(err).Error("Failed to load analysis for completion")
		}
		return
	}

	mapped := s.mapper.Map(payload)
	analysis.ResultJSON = mapped.ResultJSON
	analysis.Issues = models.MustNewJSONB(mapped.Issues)
	analysis.Suggestions = models.MustNewJSONB(mapped.Suggestions)
	analysis.Severity = mapped.Severity
	analysis.ResultStatus = mapped.ResultStatus
	analysis.Status = models.AnalysisStatusCompleted
	if err := s.acceptances.Save(ctx, analysis); err != nil {
		s.logger.WithError(err).Error("Failed to persist completed analysis")
		return
	}

	if mapped.ResultStatus == models.ResultStatusPassed || mapped.ResultStatus == models.ResultStatusCompleted {
		if err := s.schedule.MarkStagePassed(ctx, analysis.UserID, analysis.Stage); err != nil {
			if _, ok := IsConflictError(err); ok {
				s.logger.WithFields(logrus.Fields{
					"analysis_id": analysis.ID,
					"stage":       analysis.Stage,
				}).Warn("Stage advance blocked by interlock")
			} else {
				s.logger.WithError(err).Error("Failed to advance stage after analysis")
			}
		}
	}

	title := fmt.Sprintf("%s验收分析完成", models.StageNames[analysis.Stage])
	content := "验收通过，可以进入下一阶段"
	if mapped.ResultStatus != models.ResultStatusPassed {
		content = fmt.Sprintf("发现%d个问题，请查看整改建议", len(mapped.Issues))
	}
	s.postMessage(ctx, analysis.UserID, models.MessageCategoryAcceptance, title, content,
		fmt.Sprintf("/acceptance/%s", analysis.ID))

	if granted, err := s.entitlement.MaybeGrantFirstFreeAcceptance(ctx, analysis.UserID, analysis.ID); err != nil {
		s.logger.WithError(err).Warn("First-free grant check failed")
	} else if granted {
		analysis.IsUnlocked = true
		analysis.UnlockType = models.UnlockTypeFirstFree
	}

	if err := s.notifier.Push(ctx, analysis.UserID.String(), notify.TemplateStageAcceptance, map[string]string{
		"arg0": models.StageNames[analysis.Stage],
	}); err != nil {
		s.logger.WithError(err).Debug("Push delivery failed")
	}
	s.publishCompleted(analysis)
}

func (s *AcceptanceService) publishCompleted(analysis *models.AcceptanceAnalysis) {
	if s.events == nil || !s.events.Connected() {
		return
	}
	s.events.PublishAnalysisCompleted(natsclient.AnalysisCompletedEvent{
		AnalysisID:   analysis.ID.String(),
		UserID:       analysis.UserID.String(),
		Kind:         "acceptance",
		Stage:        analysis.Stage,
		Status:       analysis.Status,
		ResultStatus: analysis.ResultStatus,
		Severity:     analysis.Severity,
	})
}

func (s *AcceptanceService) postMessage(ctx context.Context, userID uuid.UUID, category, title, content, link string) {
	msg := &models.Message{
		UserID:   userID,
		Category: category,
		Title:    title,
		Content:  content,
		LinkURL:  link,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to create message")
	}
}

// Get returns an analysis owned by the caller
func (s *AcceptanceService) Get(ctx context.Context, userID, analysisID uuid.UUID) (*models.AcceptanceAnalysis, error) {
	analysis, err := s.acceptances.GetByID(ctx, analysisID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("验收分析")
		}
		return nil, err
	}
	return analysis, nil
}

// List returns the caller's analyses, optionally filtered by stage
func (s *AcceptanceService) List(ctx context.Context, userID uuid.UUID, stageKey string) ([]models.AcceptanceAnalysis, error) {
	canonical := ""
	if stageKey != "" {
		canonical = models.NormalizeStageKey(stageKey)
		if canonical == "" {
			return nil, NewValidationError("stage", fmt.Sprintf("未知的施工阶段: %s", stageKey))
		}
	}
	return s.acceptances.ListByUser(ctx, userID, canonical)
}

// MarkRectify records fix evidence for a failed analysis and moves it to
// pending recheck
func (s *AcceptanceService) MarkRectify(ctx context.Context, userID, analysisID uuid.UUID, photoURLs []string) (*models.AcceptanceAnalysis, error) {
	if len(photoURLs) == 0 {
		return nil, NewValidationError("photo_urls", "请上传整改照片")
	}

	analysis, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis.ResultStatus != models.ResultStatusNeedRectify && analysis.ResultStatus != models.ResultStatusFailed {
		return nil, NewConflictError("analysis", "当前状态不允许提交整改")
	}

	now := time.Now()
	analysis.RectifiedPhotoURLs = models.MustNewJSONB(photoURLs)
	analysis.RectifiedAt = &now
	analysis.ResultStatus = models.ResultStatusPendingRecheck
	if err := s.acceptances.Save(ctx, analysis); err != nil {
		return nil, err
	}

	if err := s.photos.CreateBatch(ctx, userID, analysis.Stage, photoURLs); err != nil {
		s.logger.WithError(err).Warn("Failed to record rectify photos")
	}
	return analysis, nil
}

// RequestRecheck re-dispatches a rectified analysis for a new AI pass
func (s *AcceptanceService) RequestRecheck(ctx context.Context, userID, analysisID uuid.UUID, photoURLs []string) (*models.AcceptanceAnalysis, error) {
	analysis, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis.ResultStatus != models.ResultStatusPendingRecheck {
		return nil, NewConflictError("analysis", "请先提交整改照片")
	}

	files := analysis.FileURLs.StringSlice()
	if len(photoURLs) > 0 {
		files = append(files, photoURLs...)
		analysis.FileURLs = models.MustNewJSONB(files)
		if err := s.photos.CreateBatch(ctx, userID, analysis.Stage, photoURLs); err != nil {
			s.logger.WithError(err).Warn("Failed to record recheck photos")
		}
	}

	analysis.RecheckCount++
	analysis.Status = models.AnalysisStatusAnalyzing
	if err := s.acceptances.Save(ctx, analysis); err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Delete soft-deletes an analysis; an in-flight completion then no-ops
func (s *AcceptanceService) Delete(ctx context.Context, userID, analysisID uuid.UUID) error {
	err := s.acceptances.SoftDelete(ctx, analysisID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("验收分析")
		}
		return err
	}
	return nil
}
