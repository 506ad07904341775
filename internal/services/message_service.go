package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"renovation-service/internal/models"
	"renovation-service/internal/repository"
)

// MessageService exposes the message center and per-user settings
type MessageService struct {
	messages *repository.MessageRepository
	settings *repository.SettingRepository
}

// NewMessageService creates a new message service
func NewMessageService(messages *repository.MessageRepository, settings *repository.SettingRepository) *MessageService {
	return &MessageService{messages: messages, settings: settings}
}

// List returns a page of the caller's messages
func (s *MessageService) List(ctx context.Context, userID uuid.UUID, category string, page, pageSize int) ([]models.Message, int64, error) {
	if category != "" && !validMessageCategory(category) {
		return nil, 0, NewValidationError("category", "未知的消息分类")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.messages.ListByUser(ctx, userID, category, page, pageSize)
}

func validMessageCategory(category string) bool {
	switch category {
	case models.MessageCategorySystem, models.MessageCategoryProgress,
		models.MessageCategoryReport, models.MessageCategoryAcceptance,
		models.MessageCategoryCustomerService, models.MessageCategoryPayment:
		return true
	}
	return false
}

// MarkRead flips one message to read
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID uuid.UUID) error {
	err := s.messages.MarkRead(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("消息")
		}
		return err
	}
	return nil
}

// UnreadCount returns the caller's unread message count
func (s *MessageService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.messages.UnreadCount(ctx, userID)
}

// GetSettings returns the caller's settings, with defaults when unset
func (s *MessageService) GetSettings(ctx context.Context, userID uuid.UUID) (*models.UserSetting, error) {
	return s.settings.GetByUserID(ctx, userID)
}

// UpdateSettings validates and stores the caller's settings
func (s *MessageService) UpdateSettings(ctx context.Context, userID uuid.UUID, setting *models.UserSetting) (*models.UserSetting, error) {
	if setting.ReminderDaysBefore < 0 || setting.ReminderDaysBefore > 30 {
		return nil, NewValidationError("reminder_days_before", "提醒提前天数需在0到30之间")
	}
	if setting.StorageDurationMonths < 1 || setting.StorageDurationMonths > 60 {
		return nil, NewValidationError("storage_duration_months", "存储时长需在1到60个月之间")
	}
	setting.UserID = userID
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}
