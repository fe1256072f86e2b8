package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"phFolio/internal/dashboard"
	"phFolio/internal/database"
	"phFolio/internal/errcode"
	"phFolio/internal/notify"
	"phFolio/internal/pdf"
	"phFolio/internal/render"
	"phFolio/internal/storage"
	"phFolio/internal/tasks"
)

// ProfileReader 读取用户资料。
type ProfileReader interface {
	Profile(ctx context.Context, userID uint) (*database.Profile, error)
}

// PortfolioLoader 加载公开作品集。
type PortfolioLoader interface {
	Public(ctx context.Context, username string) (dashboard.Aggregate, error)
}

// ExportHandler 消费作品集 PDF 导出任务：渲染公开页面、打印、上传并通知用户。
type ExportHandler struct {
	profiles      ProfileReader
	portfolios    PortfolioLoader
	renderer      *render.Renderer
	generator     pdf.Generator
	storage       storage.ObjectStore
	publisher     notify.Publisher
	publicBaseURL string
	logger        *slog.Logger
}

// NewExportHandler 创建任务处理器。
func NewExportHandler(
	profiles ProfileReader,
	portfolios PortfolioLoader,
	renderer *render.Renderer,
	generator pdf.Generator,
	objectStore storage.ObjectStore,
	publisher notify.Publisher,
	publicBaseURL string,
	logger *slog.Logger,
) *ExportHandler {
	return &ExportHandler{
		profiles:      profiles,
		portfolios:    portfolios,
		renderer:      renderer,
		generator:     generator,
		storage:       objectStore,
		publisher:     publisher,
		publicBaseURL: strings.TrimSpace(publicBaseURL),
		logger:        logger,
	}
}

// exportError 携带推送给前端的错误码。
type exportError struct {
	code int
	err  error
}

func (e *exportError) Error() string { return e.err.Error() }
func (e *exportError) Unwrap() error { return e.err }

func failed(code int, err error) error { return &exportError{code: code, err: err} }

// ProcessTask 实现 asynq.Handler。
func (h *ExportHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParsePortfolioExportPayload(t)
	if err != nil {
		h.logger.Error("invalid export payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("portfolio export started")

	defer func() {
		if retErr == nil {
			return
		}
		permanent := errors.Is(retErr, asynq.SkipRetry)
		if !permanent && !isFinalAsynqAttempt(ctx) {
			return
		}
		code := errcode.SystemError
		var exportErr *exportError
		if errors.As(retErr, &exportErr) {
			code = exportErr.code
		}
		h.publish(ctx, log, payload.UserID, notify.Message{
			Type:          notify.TypeExportFailed,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  errcode.Message(code),
		})
	}()

	profile, err := h.profiles.Profile(ctx, payload.UserID)
	if err != nil {
		log.Error("load profile failed", slog.Any("error", err))
		return err
	}
	username := profile.UsernameOrEmpty()
	if username == "" {
		log.Info("export skipped: profile has no username")
		return fmt.Errorf("%w: %w", asynq.SkipRetry, failed(errcode.PortfolioMissing, errors.New("profile has no username")))
	}

	agg, err := h.portfolios.Public(ctx, username)
	if errors.Is(err, dashboard.ErrPortfolioNotFound) {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, failed(errcode.PortfolioMissing, err))
	}
	if err != nil {
		log.Error("load portfolio failed", slog.Any("error", err))
		return err
	}

	html, err := h.renderer.RenderString(render.Page{
		Aggregate: agg,
		PublicURL: render.PortfolioURL(h.publicBaseURL, username),
		Print:     true,
	})
	if err != nil {
		log.Error("render portfolio failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", asynq.SkipRetry, failed(errcode.RenderFailed, err))
	}

	data, err := h.generator.FromHTML(ctx, html)
	if err != nil {
		log.Error("print pdf failed", slog.Any("error", err))
		return failed(errcode.RenderFailed, err)
	}

	key := storage.ObjectKey(payload.UserID, storage.KindExport, ".pdf")
	url, err := h.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf")
	if err != nil {
		log.Error("upload pdf failed", slog.Any("error", err))
		return failed(errcode.UploadFailed, err)
	}

	h.publish(ctx, log, payload.UserID, notify.Message{
		Type:          notify.TypeExportCompleted,
		CorrelationID: payload.CorrelationID,
		URL:           url,
	})
	log.Info("portfolio export completed", slog.String("object_key", key), slog.Int("bytes", len(data)))
	return nil
}

func (h *ExportHandler) publish(ctx context.Context, log *slog.Logger, userID uint, msg notify.Message) {
	if err := h.publisher.Publish(ctx, userID, msg); err != nil {
		log.Error("publish export notification failed", slog.String("type", msg.Type), slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
