package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"renovation-service/internal/models"
	rediscache "renovation-service/internal/redis"
	"renovation-service/internal/repository"
)

const (
	materialListCacheTTL = 10 * time.Minute
	materialListCap      = 50
)

// materialKeywords flag OCR lines that look like material entries
var materialKeywords = []string{
	"水泥", "瓷砖", "涂料", "乳胶漆", "腻子", "砂浆", "防水", "板材",
	"木板", "地板", "木门", "电线", "水管", "管材", "开关", "插座",
	"灯具", "五金", "龙骨", "石膏", "玻璃", "洁具", "吊顶",
}

// MaterialListItem is one normalized entry of the pre-check material list
type MaterialListItem struct {
	MaterialName string `json:"material_name"`
	SpecBrand    string `json:"spec_brand,omitempty"`
	Quantity     string `json:"quantity,omitempty"`
	Category     string `json:"category"`
	UnitPrice    string `json:"unit_price,omitempty"`
}

// MaterialList is the material list derived from the user's latest completed
// procurement artifact
type MaterialList struct {
	Items    []MaterialListItem `json:"items"`
	Source   string             `json:"source"` // quote | contract | none
	SourceID *uuid.UUID         `json:"source_id,omitempty"`
	Hint     string             `json:"hint,omitempty"`
}

// CheckItemInput is one inspected material line of a check submission
type CheckItemInput struct {
	MaterialName  string   `json:"material_name" binding:"required"`
	SpecBrand     string   `json:"spec_brand"`
	Quantity      string   `json:"quantity"`
	Category      string   `json:"category"`
	PhotoURLs     []string `json:"photo_urls"`
	DocInvoiceURL string   `json:"doc_invoice_url"`
	DocReportURL  string   `json:"doc_report_url"`
}

// SubmitCheckInput is a material check submission
type SubmitCheckInput struct {
	QuoteID     *uuid.UUID       `json:"quote_id"`
	Items       []CheckItemInput `json:"items"`
	Result      string           `json:"result"`
	ProblemNote string           `json:"problem_note"`
}

// MaterialService bridges procurement artifacts into the material pre-check
// and reflects check outcomes into the schedule's first stage.
type MaterialService struct {
	db        *gorm.DB
	materials *repository.MaterialRepository
	artifacts *repository.ArtifactRepository
	photos    *repository.PhotoRepository
	schedule  *ScheduleService
	cache     *rediscache.Client
	logger    *logrus.Entry
}

// NewMaterialService creates a new material service. cache may be nil.
func NewMaterialService(db *gorm.DB, materials *repository.MaterialRepository, artifacts *repository.ArtifactRepository, photos *repository.PhotoRepository, schedule *ScheduleService, cache *rediscache.Client, logger *logrus.Logger) *MaterialService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MaterialService{
		db:        db,
		materials: materials,
		artifacts: artifacts,
		photos:    photos,
		schedule:  schedule,
		cache:     cache,
		logger:    logger.WithField("component", "material"),
	}
}

// GetMaterialList derives the pre-check list from the latest completed quote,
// falling back to the latest completed contract, then to an empty hint.
func (s *MaterialService) GetMaterialList(ctx context.Context, userID uuid.UUID) (*MaterialList, error) {
	cacheKey := rediscache.MaterialListKeyPrefix + userID.String()
	if s.cache != nil {
		var cached MaterialList
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	list := s.buildMaterialList(ctx, userID)

	if s.cache != nil && list.Source != "none" {
		if err := s.cache.SetJSON(ctx, cacheKey, list, materialListCacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache material list")
		}
	}
	return list, nil
}

func (s *MaterialService) buildMaterialList(ctx context.Context, userID uuid.UUID) *MaterialList {
	for _, artifactType := range []string{models.ArtifactTypeQuote, models.ArtifactTypeContract} {
		artifact, err := s.artifacts.LatestCompletedByType(ctx, userID, artifactType)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.WithError(err).Warn("Failed to load procurement artifact")
			}
			continue
		}

		items := extractMaterials(artifact)
		if len(items) == 0 {
			continue
		}

		source := "quote"
		if artifactType == models.ArtifactTypeContract {
			source = "contract"
		}
		id := artifact.ID
		return &MaterialList{Items: items, Source: source, SourceID: &id}
	}

	return &MaterialList{
		Items:  []MaterialListItem{},
		Source: "none",
		Hint:   "请先上传报价单或合同，完成分析后可生成材料清单",
	}
}

// extractMaterials pulls material entries out of an artifact's analysis JSON,
// trying explicit lists, then OCR text heuristics, then risk item names.
func extractMaterials(artifact *models.ReportArtifact) []MaterialListItem {
	var result map[string]interface{}
	if len(artifact.ResultJSON) > 0 {
		if err := json.Unmarshal([]byte(artifact.ResultJSON), &result); err != nil {
			result = nil
		}
	}

	items := materialsFromExplicitList(result)
	if len(items) == 0 {
		items = materialsFromOCRText(artifact.OCRText)
	}
	if len(items) == 0 {
		items = materialsFromRiskItems(result)
	}
	if len(items) == 0 {
		return nil
	}

	// Key materials first, then auxiliary, preserving relative order
	sorted := make([]MaterialListItem, 0, len(items))
	for _, item := range items {
		if item.Category == models.MaterialCategoryKey {
			sorted = append(sorted, item)
		}
	}
	for _, item := range items {
		if item.Category != models.MaterialCategoryKey {
			sorted = append(sorted, item)
		}
	}
	if len(sorted) > materialListCap {
		sorted = sorted[:materialListCap]
	}
	return sorted
}

func materialsFromExplicitList(result map[string]interface{}) []MaterialListItem {
	if result == nil {
		return nil
	}
	for _, key := range []string{"materials", "material_list"} {
		raw, ok := result[key].([]interface{})
		if !ok {
			continue
		}
		items := make([]MaterialListItem, 0, len(raw))
		for _, entry := range raw {
			switch v := entry.(type) {
			case map[string]interface{}:
				item := MaterialListItem{
					MaterialName: firstString(v, "material_name", "name"),
					SpecBrand:    firstString(v, "spec_brand", "spec", "brand"),
					Quantity:     firstString(v, "quantity", "amount"),
					Category:     firstString(v, "category"),
					UnitPrice:    firstString(v, "unit_price", "price"),
				}
				if item.MaterialName == "" {
					continue
				}
				if item.Category == "" {
					item.Category = models.MaterialCategoryKey
				}
				items = append(items, item)
			case string:
				if v != "" {
					items = append(items, MaterialListItem{MaterialName: v, Category: models.MaterialCategoryKey})
				}
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func materialsFromOCRText(text string) []MaterialListItem {
	if text == "" {
		return nil
	}
	var items []MaterialListItem
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 120 {
			continue
		}
		for _, keyword := range materialKeywords {
			if !strings.Contains(line, keyword) {
				continue
			}
			if seen[keyword] {
				break
			}
			seen[keyword] = true
			items = append(items, MaterialListItem{
				MaterialName: keyword,
				SpecBrand:    line,
				Category:     models.MaterialCategoryKey,
			})
			break
		}
	}
	return items
}

func materialsFromRiskItems(result map[string]interface{}) []MaterialListItem {
	if result == nil {
		return nil
	}
	var items []MaterialListItem
	for key, category := range map[string]string{
		"high_risk_items": models.MaterialCategoryKey,
		"warning_items":   models.MaterialCategoryAuxiliary,
	} {
		raw, ok := result[key].([]interface{})
		if !ok {
			continue
		}
		for _, entry := range raw {
			name := ""
			switch v := entry.(type) {
			case string:
				name = v
			case map[string]interface{}:
				name = firstString(v, "item", "name", "material_name", "description")
			}
			if name != "" {
				items = append(items, MaterialListItem{MaterialName: name, Category: category})
			}
		}
	}
	return items
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// SubmitCheck validates and persists a material check, then reflects the
// outcome into the schedule's first stage in the same transaction
func (s *MaterialService) SubmitCheck(ctx context.Context, userID uuid.UUID, input SubmitCheckInput) (*models.MaterialCheck, error) {
	if len(input.Items) == 0 {
		return nil, NewValidationError("items", "请至少提交一项材料")
	}
	switch input.Result {
	case models.CheckResultPass:
		for _, item := range input.Items {
			if len(item.PhotoURLs) == 0 {
				return nil, NewValidationError("items", "核对通过时每项材料需要至少一张照片")
			}
		}
	case models.CheckResultFail:
		if len(strings.TrimSpace(input.ProblemNote)) < 10 {
			return nil, NewValidationError("problem_note", "核对不通过时请填写至少10个字的问题说明")
		}
	default:
		return nil, NewValidationError("result", "核对结果必须为 pass 或 fail")
	}

	check := &models.MaterialCheck{
		UserID:      userID,
		QuoteID:     input.QuoteID,
		Result:      input.Result,
		ProblemNote: strings.TrimSpace(input.ProblemNote),
		SubmittedAt: time.Now(),
	}
	var allPhotos []string
	for _, item := range input.Items {
		photoJSON, _ := json.Marshal(item.PhotoURLs)
		check.Items = append(check.Items, models.MaterialCheckItem{
			MaterialName:  item.MaterialName,
			SpecBrand:     item.SpecBrand,
			Quantity:      item.Quantity,
			Category:      item.Category,
			PhotoURLs:     models.JSONB(photoJSON),
			DocInvoiceURL: item.DocInvoiceURL,
			DocReportURL:  item.DocReportURL,
		})
		allPhotos = append(allPhotos, item.PhotoURLs...)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.materials.CreateCheck(ctx, tx, check); err != nil {
			return err
		}
		return s.schedule.ApplyMaterialResult(ctx, tx, userID, input.Result == models.CheckResultPass)
	})
	if err != nil {
		return nil, err
	}

	if err := s.photos.CreateBatch(ctx, userID, models.StageMaterial, allPhotos); err != nil {
		s.logger.WithError(err).Warn("Failed to record material check photos")
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, rediscache.MaterialListKeyPrefix+userID.String()); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate material list cache")
		}
	}
	return check, nil
}

// LatestCheck returns the user's most recent check with its items
func (s *MaterialService) LatestCheck(ctx context.Context, userID uuid.UUID) (*models.MaterialCheck, error) {
	check, err := s.materials.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("材料核对记录")
		}
		return nil, err
	}
	return check, nil
}
