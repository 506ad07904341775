package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"renovation-service/internal/models"
)

// MaterialRepository handles material checks and their items
type MaterialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository creates a new material repository
func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// CreateCheck persists a check and all its items inside tx
func (r *MaterialRepository) CreateCheck(ctx context.Context, tx *gorm.DB, check *models.MaterialCheck) error {
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	for i := range check.Items {
		if check.Items[i].ID == uuid.Nil {
			check.Items[i].ID = uuid.New()
		}
		check.Items[i].MaterialCheckID = check.ID
	}
	if err := tx.WithContext(ctx).Create(check).Error; err != nil {
		return fmt.Errorf("failed to create material check: %w", err)
	}
	return nil
}

// GetLatestByUserID returns the most recent check with its items
func (r *MaterialRepository) GetLatestByUserID(ctx context.Context, userID uuid.UUID) (*models.MaterialCheck, error) {
	var check models.MaterialCheck
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		First(&check).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get latest material check: %w", err)
	}
	return &check, nil
}
