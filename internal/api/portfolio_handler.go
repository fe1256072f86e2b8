package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"phFolio/internal/dashboard"
	"phFolio/internal/render"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// PortfolioHandler 提供无需登录的公开作品集。
type PortfolioHandler struct {
	loader        *dashboard.Loader
	renderer      *render.Renderer
	publicBaseURL string
}

// NewPortfolioHandler 构造 PortfolioHandler。
func NewPortfolioHandler(loader *dashboard.Loader, renderer *render.Renderer, publicBaseURL string) *PortfolioHandler {
	return &PortfolioHandler{loader: loader, renderer: renderer, publicBaseURL: publicBaseURL}
}

// Get 返回 JSON 形式的公开作品集。
func (h *PortfolioHandler) Get(c *gin.Context) {
	agg, err := h.loader.Public(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Page 以用户选择的模板渲染 HTML。
func (h *PortfolioHandler) Page(c *gin.Context) {
	username := c.Param("username")
	agg, err := h.loader.Public(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	page := render.Page{
		Aggregate: agg,
		PublicURL: render.PortfolioURL(h.publicBaseURL, username),
	}
	if err := h.renderer.Render(&buf, page); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// QRCode 返回指向公开页面的二维码 PNG，size 参数限制在 128 到 1024 之间。
func (h *PortfolioHandler) QRCode(c *gin.Context) {
	username := c.Param("username")
	if _, err := h.loader.Public(c.Request.Context(), username); err != nil {
		writeError(c, err)
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(c, "invalid size")
			return
		}
		size = min(max(n, minQRSize), maxQRSize)
	}

	png, err := qrcode.Encode(render.PortfolioURL(h.publicBaseURL, username), qrcode.Medium, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}
