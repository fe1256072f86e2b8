package storage

import (
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
)

// IsNotExist 判断错误是否表示对象不存在，兼容 MinIO/S3 与 GCS 两种后端。
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return true
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch strings.ToLower(strings.TrimSpace(minioErr.Code)) {
		case "nosuchkey", "notfound":
			return true
		}
	}

	// 网关可能把 S3 错误包装成纯文本。
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist")
}
