package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"renovation-service/internal/models"
)

// ConstructionRepository handles the per-user construction aggregate. Every
// mutation goes through GetForUpdate inside a transaction so concurrent stage
// updates cannot tear the stage map.
type ConstructionRepository struct {
	db *gorm.DB
}

// NewConstructionRepository creates a new construction repository
func NewConstructionRepository(db *gorm.DB) *ConstructionRepository {
	return &ConstructionRepository{db: db}
}

// GetByUserID performs a snapshot read without the row lock
func (r *ConstructionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Construction, error) {
	var construction models.Construction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&construction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get construction: %w", err)
	}
	return &construction, nil
}

// GetForUpdate loads the construction inside tx holding the per-user row
// lock. Returns gorm.ErrRecordNotFound when the user has no construction.
func (r *ConstructionRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Construction, error) {
	var construction models.Construction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&construction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to lock construction: %w", err)
	}
	return &construction, nil
}

// Create inserts a new construction inside tx
func (r *ConstructionRepository) Create(ctx context.Context, tx *gorm.DB, construction *models.Construction) error {
	if construction.ID == uuid.Nil {
		construction.ID = uuid.New()
	}
	if err := tx.WithContext(ctx).Create(construction).Error; err != nil {
		return fmt.Errorf("failed to create construction: %w", err)
	}
	return nil
}

// Save persists construction mutations inside tx
func (r *ConstructionRepository) Save(ctx context.Context, tx *gorm.DB, construction *models.Construction) error {
	if err := tx.WithContext(ctx).Save(construction).Error; err != nil {
		return fmt.Errorf("failed to save construction: %w", err)
	}
	return nil
}

// ListActive returns all constructions that have a start date and are not
// finished yet. Used by the reminder delivery job.
func (r *ConstructionRepository) ListActive(ctx context.Context) ([]models.Construction, error) {
	var constructions []models.Construction
	err := r.db.WithContext(ctx).
		Where("start_date IS NOT NULL AND actual_end_date IS NULL").
		Find(&constructions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active constructions: %w", err)
	}
	return constructions, nil
}

// DeleteByUserID removes the user's construction
func (r *ConstructionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Construction{}).Error; err != nil {
		return fmt.Errorf("failed to delete construction: %w", err)
	}
	return nil
}
