package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"phFolio/internal/dashboard"
	"phFolio/internal/store"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context) { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string) { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string) { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string) { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string) { Error(c, http.StatusInternalServerError, msg) }
func TooManyRequests(c *gin.Context) { Error(c, http.StatusTooManyRequests, "rate limit exceeded") }
func UnsupportedMedia(c *gin.Context, msg string) { Error(c, http.StatusUnsupportedMediaType, msg) }

// Unprocessable 返回带字段信息的校验错误。
func Unprocessable(c *gin.Context, verr *dashboard.ValidationError) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "validation failed",
		"field":   verr.Field,
		"message": verr.Message,
	})
}

// writeError 把领域错误映射为 HTTP 响应，未知错误记录日志后返回 500。
func writeError(c *gin.Context, err error) {
	var verr *dashboard.ValidationError
	switch {
	case errors.Is(err, dashboard.ErrNoSession):
		Unauthorized(c)
	case errors.As(err, &verr):
		Unprocessable(c, verr)
	case errors.Is(err, dashboard.ErrUsernameTaken):
		Conflict(c, "username already taken")
	case store.IsDuplicateKey(err):
		Conflict(c, "record already exists")
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, "record not found")
	case errors.Is(err, dashboard.ErrPortfolioNotFound):
		NotFound(c, "portfolio not found")
	default:
		loggerFor(c).Error("request failed", "error", err)
		_ = c.Error(err)
		Internal(c, "internal error")
	}
}
