package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"phFolio/internal/config"
)

const gcsPublicBase = "https://storage.googleapis.com"

// GCSClient 是 Google Cloud Storage 后端。
type GCSClient struct {
	client     *gcs.Client
	bucket     string
	publicBase string
}

// NewGCSClient 根据配置构造 GCS 客户端；未配置凭据文件时使用默认凭据链。
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}

	g := &GCSClient{client: client, bucket: cfg.Bucket, publicBase: gcsPublicBase}
	if base := strings.TrimSpace(cfg.PublicBaseURL); base != "" {
		g.publicBase = base
	}
	if err := g.ensureBucket(ctx, cfg.ProjectID); err != nil {
		_ = client.Close()
		return nil, err
	}
	return g, nil
}

func (g *GCSClient) ensureBucket(ctx context.Context, projectID string) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("check gcs bucket %q: %w", g.bucket, err)
	}
	if strings.TrimSpace(projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.client.Bucket(g.bucket).Create(ctx, projectID, nil)
}

// Upload 写入对象并返回公开地址。
func (g *GCSClient) Upload(ctx context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if strings.TrimSpace(contentType) != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write gcs object %q: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object %q: %w", key, err)
	}
	return joinURL(g.publicBase, g.bucket, key), nil
}

// Delete 删除对象，对象不存在视为成功。
func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err == nil || IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("delete gcs object %q: %w", key, err)
}

// Close 释放底层连接。
func (g *GCSClient) Close() error {
	return g.client.Close()
}
