package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"renovation-service/internal/models"
	"renovation-service/internal/repository"
)

var memberMonths = map[string]int{
	models.OrderTypeMemberMonth:  1,
	models.OrderTypeMemberSeason: 3,
	models.OrderTypeMemberYear:   12,
}

// EntitlementService decides whether an artifact is viewable: first-free,
// member, or paid. All grants serialize on the user row lock so concurrent
// completions cannot double-grant.
type EntitlementService struct {
	db          *gorm.DB
	users       *repository.UserRepository
	artifacts   *repository.ArtifactRepository
	acceptances *repository.AcceptanceRepository
	logger      *logrus.Entry
	now         func() time.Time
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(db *gorm.DB, users *repository.UserRepository, artifacts *repository.ArtifactRepository, acceptances *repository.AcceptanceRepository, logger *logrus.Logger) *EntitlementService {
	if logger == nil {
		logger = logrus.New()
	}
	return &EntitlementService{
		db:          db,
		users:       users,
		artifacts:   artifacts,
		acceptances: acceptances,
		logger:      logger.WithField("component", "entitlement"),
		now:         time.Now,
	}
}

// ActiveMember reports whether the user holds a non-expired membership
func (s *EntitlementService) ActiveMember(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.ActiveMember(s.now()), nil
}

// MaybeGrantFirstFreeArtifact applies the first-free rule to a completed
// report artifact. Returns whether the grant happened.
func (s *EntitlementService) MaybeGrantFirstFreeArtifact(ctx context.Context, userID, artifactID uuid.UUID) (bool, error) {
	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		free, err := s.firstFreeAvailable(ctx, tx, userID)
		if err != nil || !free {
			return err
		}
		if err := s.artifacts.UnlockTx(ctx, tx, artifactID, models.UnlockTypeFirstFree); err != nil {
			return err
		}
		granted = true
		return nil
	})
	return granted, err
}

// MaybeGrantFirstFreeAcceptance applies the first-free rule to a completed
// acceptance analysis
func (s *EntitlementService) MaybeGrantFirstFreeAcceptance(ctx context.Context, userID, analysisID uuid.UUID) (bool, error) {
	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		free, err := s.firstFreeAvailable(ctx, tx, userID)
		if err != nil || !free {
			return err
		}
		err = tx.WithContext(ctx).
			Model(&models.AcceptanceAnalysis{}).
			Where("id = ?", analysisID).
			Updates(map[string]interface{}{
				"is_unlocked": true,
				"unlock_type": models.UnlockTypeFirstFree,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to unlock analysis: %w", err)
		}
		granted = true
		return nil
	})
	return granted, err
}

// firstFreeAvailable locks the user row and reports whether no artifact of
// theirs has been unlocked yet. The row lock serializes concurrent
// completions for the same user.
func (s *EntitlementService) firstFreeAvailable(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (bool, error) {
	if _, err := s.users.GetForUpdate(ctx, tx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, NewNotFoundError("用户")
		}
		return false, err
	}
	artifactCount, err := s.artifacts.CountUnlocked(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	analysisCount, err := s.acceptances.CountUnlocked(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	return artifactCount+analysisCount == 0, nil
}

// GrantForOrder applies a paid order's entitlements inside the caller's
// transaction, which also carries the pending → paid transition.
func (s *EntitlementService) GrantForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	switch order.OrderType {
	case models.OrderTypeReportSingle, models.OrderTypeReportPackage:
		if order.ResourceID == nil {
			s.logger.WithField("order_no", order.OrderNo).Warn("Report order without resource, nothing to unlock")
			return nil
		}
		unlockType := models.UnlockTypeSingle
		if order.OrderType == models.OrderTypeReportPackage {
			unlockType = models.UnlockTypePackage
		}
		return s.artifacts.UnlockTx(ctx, tx, *order.ResourceID, unlockType)

	case models.OrderTypeMemberMonth, models.OrderTypeMemberSeason, models.OrderTypeMemberYear:
		return s.extendMembership(ctx, tx, order.UserID, memberMonths[order.OrderType])

	case models.OrderTypeSupervisionSingle, models.OrderTypeSupervisionPackage:
		// Supervision orders stand as receipts; nothing to unlock
		return nil
	}
	return fmt.Errorf("unknown order type %q", order.OrderType)
}

// extendMembership flips is_member and extends the expiry by months from the
// later of now and the current expiry
func (s *EntitlementService) extendMembership(ctx context.Context, tx *gorm.DB, userID uuid.UUID, months int) error {
	user, err := s.users.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}

	base := s.now()
	if user.MemberExpiresAt != nil && user.MemberExpiresAt.After(base) {
		base = *user.MemberExpiresAt
	}
	expires := base.AddDate(0, months, 0)

	user.IsMember = true
	user.MemberExpiresAt = &expires
	return s.users.Save(ctx, tx, user)
}

// UnlockArtifactForMember marks an artifact member-unlocked
func (s *EntitlementService) UnlockArtifactForMember(ctx context.Context, artifactID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.artifacts.UnlockTx(ctx, tx, artifactID, models.UnlockTypeMember)
	})
}
