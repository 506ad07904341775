package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"renovation-service/internal/models"
)

// AcceptanceRepository handles acceptance analysis records. Soft-deleted
// rows are filtered out of every read.
type AcceptanceRepository struct {
	db *gorm.DB
}

// NewAcceptanceRepository creates a new acceptance repository
func NewAcceptanceRepository(db *gorm.DB) *AcceptanceRepository {
	return &AcceptanceRepository{db: db}
}

// Create persists a new analysis
func (r *AcceptanceRepository) Create(ctx context.Context, analysis *models.AcceptanceAnalysis) error {
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create acceptance analysis: %w", err)
	}
	return nil
}

// GetByID retrieves a live analysis owned by userID
func (r *AcceptanceRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.AcceptanceAnalysis, error) {
	var analysis models.AcceptanceAnalysis
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get acceptance analysis: %w", err)
	}
	return &analysis, nil
}

// GetLive retrieves a live analysis by ID regardless of owner. Used by the
// async completion handler, which already knows the task's user.
func (r *AcceptanceRepository) GetLive(ctx context.Context, id uuid.UUID) (*models.AcceptanceAnalysis, error) {
	var analysis models.AcceptanceAnalysis
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get acceptance analysis: %w", err)
	}
	return &analysis, nil
}

// Save persists analysis mutations
func (r *AcceptanceRepository) Save(ctx context.Context, analysis *models.AcceptanceAnalysis) error {
	if err := r.db.WithContext(ctx).Save(analysis).Error; err != nil {
		return fmt.Errorf("failed to save acceptance analysis: %w", err)
	}
	return nil
}

// SoftDelete marks the analysis deleted; in-flight completion handlers
// observe deleted_at and no-op
func (r *AcceptanceRepository) SoftDelete(ctx context.Context, id, userID uuid.UUID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.AcceptanceAnalysis{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		Update("deleted_at", now)
	if result.Error != nil {
		return fmt.Errorf("failed to delete acceptance analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByUser returns the user's live analyses, newest first
func (r *AcceptanceRepository) ListByUser(ctx context.Context, userID uuid.UUID, stage string) ([]models.AcceptanceAnalysis, error) {
	var analyses []models.AcceptanceAnalysis
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID)
	if stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if err := query.Order("created_at DESC").Find(&analyses).Error; err != nil {
		return nil, fmt.Errorf("failed to list acceptance analyses: %w", err)
	}
	return analyses, nil
}

// CountUnlocked counts the user's unlocked live analyses inside tx
func (r *AcceptanceRepository) CountUnlocked(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.AcceptanceAnalysis{}).
		Where("user_id = ? AND is_unlocked = ? AND deleted_at IS NULL", userID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unlocked analyses: %w", err)
	}
	return count, nil
}
