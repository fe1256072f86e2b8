package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"phFolio/internal/dashboard"
)

// ProfileHandler 处理资料写入与用户名可用性检查。
type ProfileHandler struct {
	profiles  *dashboard.ProfileMutations
	usernames *dashboard.UsernameChecker
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(profiles *dashboard.ProfileMutations, usernames *dashboard.UsernameChecker) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, usernames: usernames}
}

// Upsert 创建或更新当前用户的资料。
func (h *ProfileHandler) Upsert(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var in dashboard.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	profile, err := h.profiles.Upsert(c.Request.Context(), userID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// CheckUsername 返回候选用户名的状态，自己当前的用户名视为可用。
func (h *ProfileHandler) CheckUsername(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	result := h.usernames.Check(c.Request.Context(), userID, c.Query("username"))
	c.JSON(http.StatusOK, result)
}
