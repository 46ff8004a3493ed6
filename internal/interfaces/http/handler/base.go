package handler

import (
	"errors"
	"net/http"

	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// syncErrorCodes maps sync error codes to API error codes
var syncErrorCodes = map[string]string{
	"NOT_CONNECTED":  dto.ErrCodeNotConnected,
	"UNKNOWN_DOMAIN": dto.ErrCodeUnknownDomain,
	"WRITE_CONFLICT": dto.ErrCodeConflict,
}

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts sync errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var syncErr *shared.SyncError
	if errors.As(err, &syncErr) {
		code, ok := syncErrorCodes[syncErr.Code]
		if !ok {
			code = dto.ErrCodeInternal
		}
		h.Error(c, dto.GetHTTPStatus(code), code, syncErr.Message)
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}
