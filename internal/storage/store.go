package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"jobassist/internal/config"
)

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("object not found")

// Object 描述一次写入后的对象位置。
type Object struct {
	Key string
	URL string
}

// ObjectStore 抽象简历文件的存放位置（本地磁盘或 MinIO）。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Presigner 由支持限时下载链接的存储实现（MinIO）。
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New 根据 storage.driver 构造对应的 ObjectStore。
func New(cfg *config.Config) (ObjectStore, error) {
	switch cfg.Storage.Driver {
	case "", "local":
		return NewLocalStore(cfg.Storage.LocalDir)
	case "minio":
		return NewClient(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
