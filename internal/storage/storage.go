// Package storage 负责头像、项目图片与导出文件的对象存储。
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"phFolio/internal/config"
)

// ObjectStore 把对象写入存储并返回可公开访问的地址。
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// 对象分类，对应 key 中的目录。
const (
	KindAvatar       = "avatars"
	KindProjectImage = "projects"
	KindExport       = "exports"
)

// ObjectKey 生成 users/<id>/<kind>/<uuid><ext> 形式的对象 key。
func ObjectKey(userID uint, kind, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("users", fmt.Sprint(userID), kind, uuid.NewString()+ext)
}

// New 按配置选择存储后端。
func New(ctx context.Context, cfg config.Config) (ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "", "minio":
		return NewClient(cfg.MinIO)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func joinURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	if bucket == "" {
		return base + "/" + key
	}
	return base + "/" + bucket + "/" + key
}
