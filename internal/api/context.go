package api

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"phFolio/internal/api/middleware"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.UserIDFromContext(c)
}

func loggerFor(c *gin.Context) *slog.Logger {
	return middleware.LoggerFromContext(c)
}

// paramID 解析路径中的 :id，失败时已写入 400 响应。
func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}
