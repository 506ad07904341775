package services

import (
	"context"
	"errors"
	"fmt"

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

// ArtifactService drives report artifacts (quotes, contracts, company scans)
// through their created → analyzing → completed|failed lifecycle
type ArtifactService struct {
	artifacts   *repository.ArtifactRepository
	messages    *repository.MessageRepository
	entitlement *EntitlementService
	mapper      *PayloadMapper
	ocr         clients.OCR
	analyzer    clients.AIAnalyzer
	enterprise  clients.EnterpriseLookup
	pool        *workers.Pool
	notifier    notify.Notifier
	events      *natsclient.Client
	logger      *logrus.Entry
}

// NewArtifactService creates a new artifact service. events may be nil.
func NewArtifactService(
	artifacts *repository.ArtifactRepository,
	messages *repository.MessageRepository,
	entitlement *EntitlementService,
	mapper *PayloadMapper,
	ocr clients.OCR,
	analyzer clients.AIAnalyzer,
	enterprise clients.EnterpriseLookup,
	pool *workers.Pool,
	notifier notify.Notifier,
	events *natsclient.Client,
	logger *logrus.Logger,
) *ArtifactService {
	if logger == nil {
		logger = logrus.New()
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &ArtifactService{
		artifacts:   artifacts,
		messages:    messages,
		entitlement: entitlement,
		mapper:      mapper,
		ocr:         ocr,
		analyzer:    analyzer,
		enterprise:  enterprise,
		pool:        pool,
		notifier:    notifier,
		events:      events,
		logger:      logger.WithField("component", "artifact"),
	}
}

// Submit creates an artifact and dispatches its analysis. Quotes and
// contracts require a file; company scans require a company name.
func (s *ArtifactService) Submit(ctx context.Context, userID uuid.UUID, artifactType, fileURL, companyName string) (*models.ReportArtifact, error) {
	switch artifactType {
	case models.ArtifactTypeQuote, models.ArtifactTypeContract:
		if fileURL == "" {
			return nil, NewValidationError("file_url", "请上传文件")
		}
	case models.ArtifactTypeCompanyScan:
		if companyName == "" {
			return nil, NewValidationError("company_name", "请填写公司名称")
		}
	default:
		return nil, NewValidationError("artifact_type", fmt.Sprintf("未知的报告类型: %s", artifactType))
	}

	artifact := &models.ReportArtifact{
		UserID:       userID,
		ArtifactType: artifactType,
		FileURL:      fileURL,
		CompanyName:  companyName,
		Status:       models.AnalysisStatusAnalyzing,
	}
	s.setProgress(artifact, "queued", 5, "已提交，等待分析")
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		return nil, err
	}

	err := s.pool.Submit(workers.Task{
		Kind:     workers.TaskArtifact,
		TargetID: artifact.ID,
		UserID:   userID,
	})
	if err != nil {
		s.logger.WithError(err).WithField("artifact_id", artifact.ID).Warn("Failed to enqueue artifact task")
		artifact.Status = models.AnalysisStatusFailed
		if saveErr := s.artifacts.Save(ctx, artifact); saveErr != nil {
			s.logger.WithError(saveErr).Error("Failed to mark artifact failed after enqueue rejection")
		}
		return nil, NewUnavailableError("analysis", "分析服务繁忙，请稍后重试")
	}
	return artifact, nil
}

// HandleTask is the worker pool handler for artifact analysis tasks
func (s *ArtifactService) HandleTask(ctx context.Context, task workers.Task) {
	artifact, err := s.artifacts.GetAny(ctx, task.TargetID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithError(err).Error("Failed to load artifact for analysis")
		}
		return
	}

	switch artifact.ArtifactType {
	case models.ArtifactTypeQuote, models.ArtifactTypeContract:
		err = s.analyzeDocument(ctx, artifact)
	case models.ArtifactTypeCompanyScan:
		err = s.analyzeCompany(ctx, artifact)
	default:
		err = fmt.Errorf("unknown artifact type %q", artifact.ArtifactType)
	}

	if err != nil {
		s.logger.WithError(err).WithField("artifact_id", artifact.ID).Warn("Artifact analysis failed")
		s.markFailed(ctx, artifact)
		middleware.RecordAnalysisTask(string(task.Kind), "failed")
		return
	}
	s.complete(ctx, artifact)
	middleware.RecordAnalysisTask(string(task.Kind), "completed")
}

// analyzeDocument runs OCR then AI analysis for quotes and contracts
func (s *ArtifactService) analyzeDocument(ctx context.Context, artifact *models.ReportArtifact) error {
	s.saveProgress(ctx, artifact, "ocr", 20, "正在识别文字")
	ocrResult, err := s.ocr.Recognize(ctx, artifact.FileURL, artifact.ArtifactType)
	if err != nil {
		return fmt.Errorf("ocr failed: %w", err)
	}
	artifact.OCRText = ocrResult.Text

	s.saveProgress(ctx, artifact, "analyze", 50, "正在分析风险")
	var payload map[string]interface{}
	if artifact.ArtifactType == models.ArtifactTypeQuote {
		payload, err = s.analyzer.AnalyzeQuote(ctx, ocrResult.Text, artifact.TotalAmount)
	} else {
		payload, err = s.analyzer.AnalyzeContract(ctx, ocrResult.Text)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	mapped := s.mapper.Map(payload)
	artifact.ResultJSON = mapped.ResultJSON
	artifact.RiskScore = toInt(payload["risk_score"])
	artifact.RiskLevel = s.mapper.RiskLevel(artifact.RiskScore)
	if items, ok := payload["line_items"]; ok {
		artifact.LineItems = models.MustNewJSONB(items)
	}
	if total, ok := payload["total_amount"]; ok {
		artifact.TotalAmount = int64(toInt(total))
	}
	return nil
}

// analyzeCompany enriches a company scan through the enterprise lookup
func (s *ArtifactService) analyzeCompany(ctx context.Context, artifact *models.ReportArtifact) error {
	s.saveProgress(ctx, artifact, "lookup", 30, "正在查询企业信息")
	detail, err := s.enterprise.Detail(ctx, artifact.CompanyName)
	if err != nil {
		return fmt.Errorf("enterprise detail failed: %w", err)
	}

	s.saveProgress(ctx, artifact, "legal", 60, "正在查询涉诉记录")
	cases, err := s.enterprise.LegalCases(ctx, artifact.CompanyName, 20)
	if err != nil {
		return fmt.Errorf("enterprise legal cases failed: %w", err)
	}

	score := len(cases) * 10
	if detail.OperatingState != "" && detail.OperatingState != "存续" && detail.OperatingState != "在业" {
		score += 40
	}
	if score > 100 {
		score = 100
	}

	artifact.ResultJSON = models.MustNewJSONB(map[string]interface{}{
		"company":     detail,
		"legal_cases": cases,
		"case_count":  len(cases),
	})
	artifact.LegalRisks = models.MustNewJSONB(cases)
	artifact.RiskScore = score
	artifact.RiskLevel = s.mapper.RiskLevel(score)
	return nil
}

func (s *ArtifactService) complete(ctx context.Context, artifact *models.ReportArtifact) {
	artifact.Status = models.AnalysisStatusCompleted
	s.setProgress(artifact, "completed", 100, "分析完成")
	if err := s.artifacts.Save(ctx, artifact); err != nil {
		s.logger.WithError(err).Error("Failed to persist completed artifact")
		return
	}

	if granted, err := s.entitlement.MaybeGrantFirstFreeArtifact(ctx, artifact.UserID, artifact.ID); err != nil {
		s.logger.WithError(err).Warn("First-free grant check failed")
	} else if granted {
		artifact.IsUnlocked = true
		artifact.UnlockType = models.UnlockTypeFirstFree
	}

	title := map[string]string{
		models.ArtifactTypeQuote:       "报价单分析完成",
		models.ArtifactTypeContract:    "合同分析完成",
		models.ArtifactTypeCompanyScan: "公司风险扫描完成",
	}[artifact.ArtifactType]
	msg := &models.Message{
		UserID:   artifact.UserID,
		Category: models.MessageCategoryReport,
		Title:    title,
		Content:  fmt.Sprintf("风险等级：%s，点击查看详情", artifact.RiskLevel),
		LinkURL:  fmt.Sprintf("/reports/%s", artifact.ID),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to create report message")
	}
	if err := s.notifier.Push(ctx, artifact.UserID.String(), notify.TemplateReportReady, map[string]string{
		"arg0": title,
	}); err != nil {
		s.logger.WithError(err).Debug("Report push failed")
	}
	s.publishCompleted(artifact)
}

func (s *ArtifactService) markFailed(ctx context.Context, artifact *models.ReportArtifact) {
	artifact.Status = models.AnalysisStatusFailed
	s.setProgress(artifact, "failed", 100, "分析失败，请重新提交")
	if err := s.artifacts.Save(ctx, artifact); err != nil {
		s.logger.WithError(err).Error("Failed to persist failed artifact")
		return
	}
	msg := &models.Message{
		UserID:   artifact.UserID,
		Category: models.MessageCategoryReport,
		Title:    "报告分析失败",
		Content:  "分析服务暂时不可用，请稍后重新提交",
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to create failure message")
	}
	s.publishCompleted(artifact)
}

func (s *ArtifactService) publishCompleted(artifact *models.ReportArtifact) {
	if s.events == nil || !s.events.Connected() {
		return
	}
	s.events.PublishAnalysisCompleted(natsclient.AnalysisCompletedEvent{
		AnalysisID: artifact.ID.String(),
		UserID:     artifact.UserID.String(),
		Kind:       artifact.ArtifactType,
		Status:     artifact.Status,
		Severity:   artifact.RiskLevel,
	})
}

func (s *ArtifactService) setProgress(artifact *models.ReportArtifact, step string, percent int, message string) {
	artifact.AnalysisProgress = models.MustNewJSONB(map[string]interface{}{
		"step":    step,
		"percent": percent,
		"message": message,
	})
}

func (s *ArtifactService) saveProgress(ctx context.Context, artifact *models.ReportArtifact, step string, percent int, message string) {
	s.setProgress(artifact, step, percent, message)
	if err := s.artifacts.Save(ctx, artifact); err != nil {
		s.logger.WithError(err).Warn("Failed to persist analysis progress")
	}
}

// Get returns an artifact owned by the caller
func (s *ArtifactService) Get(ctx context.Context, userID, artifactID uuid.UUID) (*models.ReportArtifact, error) {
	artifact, err := s.artifacts.GetByID(ctx, artifactID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("报告")
		}
		return nil, err
	}
	return artifact, nil
}

// List returns the caller's artifacts, optionally filtered by type
func (s *ArtifactService) List(ctx context.Context, userID uuid.UUID, artifactType string) ([]models.ReportArtifact, error) {
	return s.artifacts.ListByUser(ctx, userID, artifactType)
}

// Export returns the full artifact for download. Locked artifacts are
// forbidden until unlocked by payment, membership or first-free.
func (s *ArtifactService) Export(ctx context.Context, userID, artifactID uuid.UUID) (*models.ReportArtifact, error) {
	artifact, err := s.Get(ctx, userID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Status != models.AnalysisStatusCompleted {
		return nil, NewConflictError("artifact", "报告尚未完成分析")
	}
	if !artifact.IsUnlocked {
		return nil, NewForbiddenError("报告未解锁，请购买或开通会员后查看")
	}
	return artifact, nil
}

// SearchCompanies proxies company search for the scan flow
func (s *ArtifactService) SearchCompanies(ctx context.Context, keyword string, limit int) ([]clients.CompanyInfo, error) {
	if keyword == "" {
		return nil, NewValidationError("keyword", "请输入公司名称关键字")
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	companies, err := s.enterprise.Search(ctx, keyword, limit)
	if err != nil {
		return nil, NewUnavailableError("enterprise", "企业信息服务暂时不可用")
	}
	return companies, nil
}
