package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestMinio(t *testing.T) *Minio {
	t.Helper()
	m, err := NewMinio(MinioConfig{
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "product-image-collection",
	})
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	return m
}

func TestNewMinio_InvalidEndpoint(t *testing.T) {
	_, err := NewMinio(MinioConfig{Endpoint: "localhost:9000/with/path"})
	if err == nil {
		t.Fatal("expected error for endpoint with a path")
	}
	if !strings.Contains(err.Error(), "create minio client") {
		t.Errorf("error should wrap with context, got: %v", err)
	}
}

func TestMinio_PresignGet(t *testing.T) {
	m := newTestMinio(t)

	// With the region configured, presigning needs no network round trip.
	url, err := m.PresignGet(context.Background(), "7/a.jpg", 10*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}

	if !strings.Contains(url, "product-image-collection/7/a.jpg") {
		t.Errorf("presigned URL should contain bucket and key, got %q", url)
	}
	if !strings.Contains(url, "X-Amz-Expires=600") {
		t.Errorf("presigned URL should carry a 600s expiry, got %q", url)
	}
	if !strings.HasPrefix(url, "http://") {
		t.Errorf("presigned URL should use http when UseSSL is false, got %q", url)
	}
}
