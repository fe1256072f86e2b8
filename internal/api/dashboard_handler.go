package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"phFolio/internal/api/middleware"
	"phFolio/internal/dashboard"
	"phFolio/internal/tasks"
)

// TaskEnqueuer 抽象 asynq.Client 的入队能力。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DashboardHandler 提供看板快照的读取、刷新与导出。
type DashboardHandler struct {
	loader   *dashboard.Loader
	profiles *dashboard.ProfileMutations
	tasks    TaskEnqueuer
	maxRetry int
}

// NewDashboardHandler 构造 DashboardHandler。
func NewDashboardHandler(loader *dashboard.Loader, profiles *dashboard.ProfileMutations, enqueuer TaskEnqueuer, maxRetry int) *DashboardHandler {
	return &DashboardHandler{loader: loader, profiles: profiles, tasks: enqueuer, maxRetry: maxRetry}
}

// Get 确保资料行存在后返回看板快照。
func (h *DashboardHandler) Get(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	if err := h.profiles.Ensure(ctx, userID); err != nil {
		// 资料分区会降级，看板其余部分仍可返回。
		loggerFor(c).Warn("ensure profile failed", slog.Any("error", err))
	}
	agg, err := h.loader.Dashboard(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Refresh 丢弃缓存并重新加载。
func (h *DashboardHandler) Refresh(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	agg, err := h.loader.Refresh(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Export 投递 PDF 导出任务，结果通过 WebSocket 推送。
func (h *DashboardHandler) Export(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewPortfolioExportTask(userID, correlationID)
	if err != nil {
		writeError(c, err)
		return
	}

	opts := []asynq.Option{asynq.Queue("default")}
	if h.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(h.maxRetry))
	}
	info, err := h.tasks.EnqueueContext(c.Request.Context(), task, opts...)
	if err != nil {
		writeError(c, err)
		return
	}

	loggerFor(c).Info("portfolio export enqueued", slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":        info.ID,
		"correlation_id": correlationID,
	})
}
