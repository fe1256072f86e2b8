package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"phFolio/internal/config"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(7, KindAvatar, "PNG")
	if !strings.HasPrefix(key, "users/7/avatars/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("key = %q", key)
	}
	if ObjectKey(7, KindAvatar, ".png") == key {
		t.Fatalf("keys must be unique")
	}
	if k := ObjectKey(1, KindExport, ""); strings.Contains(k, ".") {
		t.Fatalf("key without extension = %q", k)
	}
}

func TestPublicBaseURL(t *testing.T) {
	base, err := publicBaseURL(config.MinIOConfig{Endpoint: "minio:9000"})
	if err != nil || base != "http://minio:9000" {
		t.Fatalf("base = %q, err = %v", base, err)
	}
	base, err = publicBaseURL(config.MinIOConfig{Endpoint: "minio:9000", PublicEndpoint: "https://cdn.example.com/"})
	if err != nil || base != "https://cdn.example.com" {
		t.Fatalf("base = %q, err = %v", base, err)
	}
	if _, err := publicBaseURL(config.MinIOConfig{PublicEndpoint: "no-scheme"}); err == nil {
		t.Fatalf("expected error for endpoint without host")
	}
	if got := joinURL(base, "folio", "users/1/a.png"); got != "https://cdn.example.com/folio/users/1/a.png" {
		t.Fatalf("joinURL = %q", got)
	}
}

func TestIsNotExist(t *testing.T) {
	if !IsNotExist(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatalf("NoSuchKey response not detected")
	}
	if IsNotExist(errors.New("access denied")) || IsNotExist(nil) {
		t.Fatalf("false positive")
	}
}
