package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renovation-service/internal/services"
)

// MaterialHandler handles material list and material check HTTP requests
type MaterialHandler struct {
	materialSvc *services.MaterialService
}

// NewMaterialHandler creates a new material handler
func NewMaterialHandler(materialSvc *services.MaterialService) *MaterialHandler {
	return &MaterialHandler{materialSvc: materialSvc}
}

// List returns the material list derived from the latest completed artifact
// GET /api/v1/materials
func (h *MaterialHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	list, err := h.materialSvc.GetMaterialList(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", list)
}

// SubmitCheck records a material check and reflects it into the schedule
// POST /api/v1/materials/checks
func (h *MaterialHandler) SubmitCheck(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.SubmitCheckInput
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	check, err := h.materialSvc.SubmitCheck(c.Request.Context(), userID, req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "材料核对已提交", gin.H{
		"check_id":     check.ID,
		"result":       check.Result,
		"submitted_at": check.SubmittedAt,
	})
}

// LatestCheck returns the most recent check with its items
// GET /api/v1/materials/checks/latest
func (h *MaterialHandler) LatestCheck(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	check, err := h.materialSvc.LatestCheck(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", check)
}
