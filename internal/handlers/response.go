package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"renovation-service/internal/middleware"
	"renovation-service/internal/services"
)

// ErrorResponse sends a standardized error response.
// Internal errors are logged but not exposed to clients.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	requestID := getRequestID(c)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}).WithError(err).Error(message)
	}

	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": getRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		response["data"] = data
	}

	c.JSON(statusCode, response)
}

// HandleServiceError maps typed service errors to HTTP responses
func HandleServiceError(c *gin.Context, err error) {
	if validationErr, ok := services.IsValidationError(err); ok {
		ErrorResponse(c, http.StatusBadRequest, validationErr.Message, nil)
		return
	}
	if conflictErr, ok := services.IsConflictError(err); ok {
		ErrorResponse(c, http.StatusConflict, conflictErr.Message, nil)
		return
	}
	if _, ok := services.IsNotFoundError(err); ok {
		ErrorResponse(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if forbiddenErr, ok := services.IsForbiddenError(err); ok {
		ErrorResponse(c, http.StatusForbidden, forbiddenErr.Message, nil)
		return
	}
	if _, ok := services.IsUnavailableError(err); ok {
		ErrorResponse(c, http.StatusServiceUnavailable, "服务暂时不可用，请稍后重试", err)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, "服务器内部错误", err)
}

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(middleware.RequestIDKey); exists {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return c.GetHeader("X-Request-ID")
}
