package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores product images in a MinIO bucket using the native MinIO client.
type Minio struct {
	client *minio.Client
	bucket string
}

// MinioConfig holds the settings for a MinIO connection.
type MinioConfig struct {
	Endpoint  string // host:port, no scheme
	Region    string // set to avoid a bucket-location lookup before presigning
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinio creates a MinIO client. Bucket provisioning is left to the
// operator; the bucket must already exist.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing objects under %s: %w: %w", prefix, ErrUnavailable, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return filterKeys(prefix, keys), nil
}

func (m *Minio) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning GET for %s: %w: %w", key, ErrUnavailable, err)
	}
	return u.String(), nil
}

func (m *Minio) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}

func (m *Minio) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting object %s: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}
