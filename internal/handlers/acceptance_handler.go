package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"renovation-service/internal/services"
)

// AcceptanceHandler handles acceptance analysis HTTP requests
type AcceptanceHandler struct {
	acceptanceSvc *services.AcceptanceService
}

// NewAcceptanceHandler creates a new acceptance handler
func NewAcceptanceHandler(acceptanceSvc *services.AcceptanceService) *AcceptanceHandler {
	return &AcceptanceHandler{acceptanceSvc: acceptanceSvc}
}

// SubmitAcceptanceRequest represents an acceptance submission
type SubmitAcceptanceRequest struct {
	Stage    string   `json:"stage" binding:"required"`
	FileURLs []string `json:"file_urls" binding:"required"`
}

// Submit creates an analysis and dispatches the AI task
// POST /api/v1/acceptances
func (h *AcceptanceHandler) Submit(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SubmitAcceptanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	analysis, err := h.acceptanceSvc.Submit(c.Request.Context(), userID, req.Stage, req.FileURLs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "验收已提交，正在分析", gin.H{
		"analysis_id": analysis.ID,
		"status":      analysis.Status,
	})
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Get returns one analysis record
// GET /api/v1/acceptances/:id
func (h *AcceptanceHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	analysis, err := h.acceptanceSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", analysis)
}

// List returns the caller's analyses, optionally filtered by stage
// GET /api/v1/acceptances?stage=
func (h *AcceptanceHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	analyses, err := h.acceptanceSvc.List(c.Request.Context(), userID, c.Query("stage"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"analyses": analyses})
}

// PhotoURLsRequest carries photo references for rectify and recheck
type PhotoURLsRequest struct {
	PhotoURLs []string `json:"photo_urls"`
}

// MarkRectify records fix evidence for a failed analysis
// POST /api/v1/acceptances/:id/rectify
func (h *AcceptanceHandler) MarkRectify(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req PhotoURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	analysis, err := h.acceptanceSvc.MarkRectify(c.Request.Context(), userID, id, req.PhotoURLs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "整改已记录", analysis)
}

// RequestRecheck re-dispatches a rectified analysis
// POST /api/v1/acceptances/:id/recheck
func (h *AcceptanceHandler) RequestRecheck(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req PhotoURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	analysis, err := h.acceptanceSvc.RequestRecheck(c.Request.Context(), userID, id, req.PhotoURLs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "复检已提交，正在分析", analysis)
}

// Delete soft-deletes an analysis
// DELETE /api/v1/acceptances/:id
func (h *AcceptanceHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.acceptanceSvc.Delete(c.Request.Context(), userID, id); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "验收记录已删除", nil)
}
