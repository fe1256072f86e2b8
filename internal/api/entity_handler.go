package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"phFolio/internal/dashboard"
	"phFolio/internal/store"
)

// entityHandler 把一类实体的写操作暴露为 REST 接口。
type entityHandler[T any, PT store.Owned[T], I dashboard.Patch[T]] struct {
	mutations *dashboard.EntityMutations[T, PT, I]
}

// registerEntity 注册 POST /path、PATCH /path/:id 与 DELETE /path/:id。
func registerEntity[T any, PT store.Owned[T], I dashboard.Patch[T]](
	group *gin.RouterGroup,
	path string,
	mutations *dashboard.EntityMutations[T, PT, I],
) {
	h := &entityHandler[T, PT, I]{mutations: mutations}
	group.POST(path, h.create)
	group.PATCH(path+"/:id", h.update)
	group.DELETE(path+"/:id", h.delete)
}

func (h *entityHandler[T, PT, I]) create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var in I
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	row, err := h.mutations.Create(c.Request.Context(), userID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *entityHandler[T, PT, I]) update(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in I
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err.Error())
		return
	}
	row, err := h.mutations.Update(c.Request.Context(), userID, id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *entityHandler[T, PT, I]) delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.mutations.Delete(c.Request.Context(), userID, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
