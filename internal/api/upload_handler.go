package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"phFolio/internal/dashboard"
	"phFolio/internal/metrics"
	"phFolio/internal/storage"
)

// 允许上传的图片类型及其扩展名。
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadHandler 负责头像与项目图片的上传，上传前检查类型并扫描病毒。
type UploadHandler struct {
	storage  storage.ObjectStore
	scanner  Scanner
	coord    *dashboard.Coordinator
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadHandler 构造 UploadHandler。
func NewUploadHandler(objectStore storage.ObjectStore, scanner Scanner, coord *dashboard.Coordinator, maxBytes int64, logger *slog.Logger) *UploadHandler {
	if scanner == nil {
		scanner = nopScanner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		storage:  objectStore,
		scanner:  scanner,
		coord:    coord,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

type uploadedObject struct {
	key string
	url string
}

// UploadAvatar 上传头像并写入资料；写入失败时删除已上传的对象。
func (h *UploadHandler) UploadAvatar(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	obj, ok := h.receive(c, userID, storage.KindAvatar)
	if !ok {
		return
	}

	profile, err := h.coord.Profiles.SetAvatar(c.Request.Context(), userID, obj.url)
	if err != nil {
		h.discard(c.Request.Context(), obj.key)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": obj.url, "profile": profile})
}

// UploadProjectImage 上传项目图片；带 project_id 时同时更新该项目的 image_url。
func (h *UploadHandler) UploadProjectImage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var projectID uint
	if raw := c.PostForm("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			BadRequest(c, "invalid project_id")
			return
		}
		projectID = uint(id)
	}

	obj, ok := h.receive(c, userID, storage.KindProjectImage)
	if !ok {
		return
	}
	if projectID == 0 {
		c.JSON(http.StatusCreated, gin.H{"url": obj.url})
		return
	}

	project, err := h.coord.Projects.Update(c.Request.Context(), userID, projectID, dashboard.ProjectInput{ImageURL: &obj.url})
	if err != nil {
		h.discard(c.Request.Context(), obj.key)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": obj.url, "project": project})
}

// receive 读取、校验、扫描并上传表单中的 file 字段，失败时已写入响应。
func (h *UploadHandler) receive(c *gin.Context, userID uint, kind string) (uploadedObject, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return uploadedObject{}, false
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return uploadedObject{}, false
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return uploadedObject{}, false
	}
	defer reader.Close()

	limit := h.maxBytes
	if limit <= 0 {
		limit = file.Size
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		Internal(c, "failed to read file")
		return uploadedObject{}, false
	}
	if int64(len(data)) > limit {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return uploadedObject{}, false
	}

	mime := mimetype.Detect(data)
	ext, allowed := allowedImageTypes[mime.String()]
	if !allowed {
		UnsupportedMedia(c, "unsupported file type "+mime.String())
		return uploadedObject{}, false
	}

	log := loggerFor(c)
	if err := h.scanner.Scan(bytes.NewReader(data)); err != nil {
		if errors.Is(err, ErrInfected) {
			metrics.ObserveUploadScan("infected")
			log.Warn("upload rejected by virus scan", slog.String("kind", kind))
			BadRequest(c, ErrInfected.Error())
			return uploadedObject{}, false
		}
		metrics.ObserveUploadScan("error")
		log.Error("scan upload failed", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return uploadedObject{}, false
	}
	metrics.ObserveUploadScan("clean")

	key := storage.ObjectKey(userID, kind, ext)
	url, err := h.storage.Upload(c.Request.Context(), key, bytes.NewReader(data), int64(len(data)), mime.String())
	if err != nil {
		log.Error("upload object failed", slog.String("key", key), slog.Any("error", err))
		Internal(c, "failed to upload file")
		return uploadedObject{}, false
	}
	log.Info("object uploaded", slog.String("key", key), slog.Int("size", len(data)))
	return uploadedObject{key: key, url: url}, true
}

func (h *UploadHandler) discard(ctx context.Context, key string) {
	if err := h.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		h.logger.Warn("delete orphaned upload failed", slog.String("key", key), slog.Any("error", err))
	}
}
