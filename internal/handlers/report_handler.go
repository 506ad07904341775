package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"renovation-service/internal/config"
	"renovation-service/internal/services"
	"renovation-service/internal/storage"
)

// ReportHandler handles report artifact HTTP requests: uploads, submissions,
// listing, export and company search
type ReportHandler struct {
	artifactSvc *services.ArtifactService
	blobs       storage.BlobStore
	storageCfg  config.StorageConfig
}

// NewReportHandler creates a new report handler
func NewReportHandler(artifactSvc *services.ArtifactService, blobs storage.BlobStore, storageCfg config.StorageConfig) *ReportHandler {
	return &ReportHandler{artifactSvc: artifactSvc, blobs: blobs, storageCfg: storageCfg}
}

// Upload stores a file and returns its signed URL
// POST /api/v1/uploads (multipart, field "file")
func (h *ReportHandler) Upload(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请选择要上传的文件", err)
		return
	}
	if header.Size > h.storageCfg.MaxUploadSize {
		ErrorResponse(c, http.StatusBadRequest, "文件大小超过限制", nil)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, t := range h.storageCfg.AllowedFileTypes {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		ErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("不支持的文件类型: %s", ext), nil)
		return
	}

	file, err := header.Open()
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "文件读取失败", err)
		return
	}
	defer file.Close()

	key := fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), ext)
	contentType := header.Header.Get("Content-Type")
	if _, err := h.blobs.Put(c.Request.Context(), key, file, contentType); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "文件上传失败", err)
		return
	}

	ttl := time.Duration(h.storageCfg.SignedURLTTL) * time.Second
	url, err := h.blobs.SignedURL(c.Request.Context(), key, ttl)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "生成下载链接失败", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "上传成功", gin.H{"key": key, "url": url})
}

// SubmitReportRequest represents a report artifact submission
type SubmitReportRequest struct {
	ArtifactType string `json:"artifact_type" binding:"required"`
	FileURL      string `json:"file_url"`
	CompanyName  string `json:"company_name"`
}

// Submit creates an artifact and dispatches its analysis
// POST /api/v1/reports
func (h *ReportHandler) Submit(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	artifact, err := h.artifactSvc.Submit(c.Request.Context(), userID, req.ArtifactType, req.FileURL, req.CompanyName)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "已提交，正在分析", gin.H{
		"artifact_id": artifact.ID,
		"status":      artifact.Status,
	})
}

// Get returns an artifact with its analysis progress
// GET /api/v1/reports/:id
func (h *ReportHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	artifact, err := h.artifactSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", artifact)
}

// List returns the caller's artifacts
// GET /api/v1/reports?type=
func (h *ReportHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	artifacts, err := h.artifactSvc.List(c.Request.Context(), userID, c.Query("type"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"reports": artifacts})
}

// Export returns the full report; locked reports are forbidden
// GET /api/v1/reports/:id/export
func (h *ReportHandler) Export(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	artifact, err := h.artifactSvc.Export(c.Request.Context(), userID, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", artifact)
}

// SearchCompanies proxies company search for the scan flow
// GET /api/v1/companies/search?keyword=
func (h *ReportHandler) SearchCompanies(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	companies, err := h.artifactSvc.SearchCompanies(c.Request.Context(), c.Query("keyword"), 10)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"companies": companies})
}
