package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"renovation-service/internal/models"
	"renovation-service/internal/repository"
)

// AuthService exchanges an external login code for a user and session token.
// The code has already been resolved to a stable external identity by the
// upstream identity provider.
type AuthService struct {
	users  *repository.UserRepository
	secret []byte
	expiry time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(users *repository.UserRepository, secret string, expiryDays int) *AuthService {
	if expiryDays <= 0 {
		expiryDays = 30
	}
	return &AuthService{
		users:  users,
		secret: []byte(secret),
		expiry: time.Duration(expiryDays) * 24 * time.Hour,
	}
}

// LoginByCode resolves the external identity, creating the user on first
// sight, and issues a session token
func (s *AuthService) LoginByCode(ctx context.Context, code string) (*models.User, string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, "", NewValidationError("code", "登录凭证不能为空")
	}

	user, err := s.users.GetOrCreateByExternalIdentity(ctx, code)
	if err != nil {
		return nil, "", err
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}
	return user, token, nil
}

func (s *AuthService) generateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		Issuer:    "renovation-service",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates a session token and returns the user ID
func (s *AuthService) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject: %w", err)
	}
	return userID, nil
}

// GetProfile returns the caller's user record
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, NewNotFoundError("用户")
	}
	return user, nil
}
