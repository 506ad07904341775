package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"renovation-service/internal/middleware"
	"renovation-service/internal/services"
)

// ScheduleHandler handles construction schedule HTTP requests
type ScheduleHandler struct {
	scheduleSvc *services.ScheduleService
	reminderSvc *services.ReminderService
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(scheduleSvc *services.ScheduleService, reminderSvc *services.ReminderService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc, reminderSvc: reminderSvc}
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "未登录", nil)
		return uuid.Nil, false
	}
	return userID, true
}

// Get returns the caller's schedule, or an empty shape when none exists
// GET /api/v1/schedule
func (h *ScheduleHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.scheduleSvc.GetSchedule(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", view)
}

// SetStartDateRequest represents a set-start-date request
type SetStartDateRequest struct {
	StartDate string         `json:"start_date" binding:"required"`
	Durations map[string]int `json:"durations"`
}

// SetStartDate creates or re-plans the schedule
// POST /api/v1/schedule/start-date
func (h *ScheduleHandler) SetStartDate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SetStartDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "开工日期格式应为YYYY-MM-DD", nil)
		return
	}

	view, err := h.scheduleSvc.SetStartDate(c.Request.Context(), userID, startDate, req.Durations)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "排期已生成", view)
}

// UpdateStageStatusRequest represents a stage status update
type UpdateStageStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStageStatus writes a new status into one stage
// POST /api/v1/schedule/stages/:stage/status
func (h *ScheduleHandler) UpdateStageStatus(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateStageStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	view, err := h.scheduleSvc.UpdateStageStatus(c.Request.Context(), userID, c.Param("stage"), req.Status)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "阶段状态已更新", view)
}

// CalibrateStageRequest represents a stage calibration request
type CalibrateStageRequest struct {
	ManualStart      string `json:"manual_start"`
	ManualAcceptance string `json:"manual_acceptance"`
}

// CalibrateStage writes manually observed dates into one stage
// POST /api/v1/schedule/stages/:stage/calibrate
func (h *ScheduleHandler) CalibrateStage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req CalibrateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	var manualStart, manualAcceptance *time.Time
	if req.ManualStart != "" {
		t, err := time.Parse("2006-01-02", req.ManualStart)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "校准日期格式应为YYYY-MM-DD", nil)
			return
		}
		manualStart = &t
	}
	if req.ManualAcceptance != "" {
		t, err := time.Parse("2006-01-02", req.ManualAcceptance)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "校准日期格式应为YYYY-MM-DD", nil)
			return
		}
		manualAcceptance = &t
	}

	view, err := h.scheduleSvc.CalibrateStage(c.Request.Context(), userID, c.Param("stage"), manualStart, manualAcceptance)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "阶段日期已校准", view)
}

// Reset deletes the caller's schedule
// DELETE /api/v1/schedule
func (h *ScheduleHandler) Reset(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.scheduleSvc.Reset(c.Request.Context(), userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "排期已重置", nil)
}

// Reminders derives the reminders due on a query date
// GET /api/v1/schedule/reminders?date=YYYY-MM-DD
func (h *ScheduleHandler) Reminders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	queryDate := time.Now()
	if raw := c.Query("date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "查询日期格式应为YYYY-MM-DD", nil)
			return
		}
		queryDate = t
	}

	reminders, err := h.reminderSvc.RemindersOn(c.Request.Context(), userID, queryDate)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"reminders": reminders})
}
