package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"renovation-service/internal/models"
)

// ArtifactRepository handles quotes, contracts and company scans
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create persists a new artifact
func (r *ArtifactRepository) Create(ctx context.Context, artifact *models.ReportArtifact) error {
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(artifact).Error; err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetByID retrieves an artifact owned by userID
func (r *ArtifactRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.ReportArtifact, error) {
	var artifact models.ReportArtifact
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

// GetAny retrieves an artifact by ID regardless of owner; used by async
// handlers that already carry the task's user
func (r *ArtifactRepository) GetAny(ctx context.Context, id uuid.UUID) (*models.ReportArtifact, error) {
	var artifact models.ReportArtifact
	if err := r.db.WithContext(ctx).First(&artifact, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

// Save persists artifact mutations
func (r *ArtifactRepository) Save(ctx context.Context, artifact *models.ReportArtifact) error {
	if err := r.db.WithContext(ctx).Save(artifact).Error; err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// LatestCompletedByType returns the user's most recent completed artifact of
// the given type, or gorm.ErrRecordNotFound
func (r *ArtifactRepository) LatestCompletedByType(ctx context.Context, userID uuid.UUID, artifactType string) (*models.ReportArtifact, error) {
	var artifact models.ReportArtifact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND artifact_type = ? AND status = ?", userID, artifactType, models.AnalysisStatusCompleted).
		Order("created_at DESC").
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get latest %s: %w", artifactType, err)
	}
	return &artifact, nil
}

// ListByUser returns the user's artifacts of a type, newest first
func (r *ArtifactRepository) ListByUser(ctx context.Context, userID uuid.UUID, artifactType string) ([]models.ReportArtifact, error) {
	var artifacts []models.ReportArtifact
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if artifactType != "" {
		query = query.Where("artifact_type = ?", artifactType)
	}
	if err := query.Order("created_at DESC").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return artifacts, nil
}

// CountUnlocked counts the user's unlocked artifacts inside tx
func (r *ArtifactRepository) CountUnlocked(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.ReportArtifact{}).
		Where("user_id = ? AND is_unlocked = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unlocked artifacts: %w", err)
	}
	return count, nil
}

// UnlockTx marks an artifact unlocked inside tx
func (r *ArtifactRepository) UnlockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, unlockType string) error {
	err := tx.WithContext(ctx).
		Model(&models.ReportArtifact{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_unlocked": true, "unlock_type": unlockType}).Error
	if err != nil {
		return fmt.Errorf("failed to unlock artifact: %w", err)
	}
	return nil
}
