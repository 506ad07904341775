package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"renovation-service/internal/models"
	"renovation-service/internal/services"
)

// MessageHandler handles message center and settings HTTP requests
type MessageHandler struct {
	messageSvc *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageSvc *services.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// List returns a page of the caller's messages
// GET /api/v1/messages?category=&page=&page_size=
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	messages, total, err := h.messageSvc.List(c.Request.Context(), userID, c.Query("category"), page, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{
		"messages": messages,
		"total":    total,
		"page":     page,
	})
}

// MarkRead flips one message to read
// POST /api/v1/messages/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.messageSvc.MarkRead(c.Request.Context(), userID, id); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "已标记为已读", nil)
}

// UnreadCount returns the caller's unread message count
// GET /api/v1/messages/unread-count
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	count, err := h.messageSvc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"unread_count": count})
}

// GetSettings returns the caller's settings
// GET /api/v1/settings
func (h *MessageHandler) GetSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	setting, err := h.messageSvc.GetSettings(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", setting)
}

// UpdateSettingsRequest represents a settings update
type UpdateSettingsRequest struct {
	ReminderDaysBefore    int  `json:"reminder_days_before"`
	NotifyProgress        bool `json:"notify_progress"`
	NotifyAcceptance      bool `json:"notify_acceptance"`
	NotifySystem          bool `json:"notify_system"`
	StorageDurationMonths int  `json:"storage_duration_months"`
}

// UpdateSettings stores the caller's settings
// PUT /api/v1/settings
func (h *MessageHandler) UpdateSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	setting, err := h.messageSvc.UpdateSettings(c.Request.Context(), userID, &models.UserSetting{
		ReminderDaysBefore:    req.ReminderDaysBefore,
		NotifyProgress:        req.NotifyProgress,
		NotifyAcceptance:      req.NotifyAcceptance,
		NotifySystem:          req.NotifySystem,
		StorageDurationMonths: req.StorageDurationMonths,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "设置已保存", setting)
}
