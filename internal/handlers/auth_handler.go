package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renovation-service/internal/middleware"
	"renovation-service/internal/services"
)

// AuthHandler handles login and profile HTTP requests
type AuthHandler struct {
	authSvc *services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *services.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// LoginRequest represents a login-by-code request
type LoginRequest struct {
	Code string `json:"code" binding:"required"`
}

// Login exchanges an external login code for a session token
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	user, token, err := h.authSvc.LoginByCode(c.Request.Context(), req.Code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "登录成功", gin.H{
		"user_id":           user.ID,
		"token":             token,
		"is_member":         user.IsMember,
		"member_expires_at": user.MemberExpiresAt,
	})
}

// Profile returns the caller's user record
// GET /api/v1/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "未登录", nil)
		return
	}

	user, err := h.authSvc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", user)
}
