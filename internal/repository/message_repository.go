package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"renovation-service/internal/models"
)

// MessageRepository handles the user-visible message center
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByUser returns the user's messages, newest first, optionally filtered
// by category
func (r *MessageRepository) ListByUser(ctx context.Context, userID uuid.UUID, category string, page, pageSize int) ([]models.Message, int64, error) {
	var messages []models.Message
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Message{}).Where("user_id = ?", userID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, total, nil
}

// MarkRead flips a message to read
func (r *MessageRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark message read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UnreadCount returns the number of unread messages
func (r *MessageRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// SettingRepository handles per-user settings
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// GetByUserID returns the user's settings, or defaults when none are stored
func (r *SettingRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSetting, error) {
	var setting models.UserSetting
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UserSetting{
				UserID:                userID,
				ReminderDaysBefore:    3,
				NotifyProgress:        true,
				NotifyAcceptance:      true,
				NotifySystem:          true,
				StorageDurationMonths: 12,
			}, nil
		}
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	return &setting, nil
}

// Upsert creates or updates the user's settings
func (r *SettingRepository) Upsert(ctx context.Context, setting *models.UserSetting) error {
	var existing models.UserSetting
	err := r.db.WithContext(ctx).Where("user_id = ?", setting.UserID).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up user settings: %w", err)
		}
		if setting.ID == uuid.Nil {
			setting.ID = uuid.New()
		}
		if err := r.db.WithContext(ctx).Create(setting).Error; err != nil {
			return fmt.Errorf("failed to create user settings: %w", err)
		}
		return nil
	}

	setting.ID = existing.ID
	if err := r.db.WithContext(ctx).Save(setting).Error; err != nil {
		return fmt.Errorf("failed to update user settings: %w", err)
	}
	return nil
}

// PhotoRepository handles construction photos
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// CreateBatch writes one photo row per file URL
func (r *PhotoRepository) CreateBatch(ctx context.Context, userID uuid.UUID, stage string, fileURLs []string) error {
	if len(fileURLs) == 0 {
		return nil
	}
	photos := make([]models.ConstructionPhoto, 0, len(fileURLs))
	for _, url := range fileURLs {
		photos = append(photos, models.ConstructionPhoto{
			ID:      uuid.New(),
			UserID:  userID,
			Stage:   stage,
			FileURL: url,
		})
	}
	if err := r.db.WithContext(ctx).Create(&photos).Error; err != nil {
		return fmt.Errorf("failed to create construction photos: %w", err)
	}
	return nil
}

// ListByUser returns the user's live photos, optionally filtered by stage
func (r *PhotoRepository) ListByUser(ctx context.Context, userID uuid.UUID, stage string) ([]models.ConstructionPhoto, error) {
	var photos []models.ConstructionPhoto
	query := r.db.WithContext(ctx).Where("user_id = ? AND deleted_at IS NULL", userID)
	if stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if err := query.Order("created_at DESC").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list construction photos: %w", err)
	}
	return photos, nil
}
