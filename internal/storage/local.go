package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"
)

// Local stores images on the local filesystem and serves them via a URL prefix.
// Suitable for development. URLs are not signed and never expire.
type Local struct {
	basePath  string // filesystem root, e.g. "./media"
	urlPrefix string // URL prefix for served files, e.g. "/media"
}

// NewLocal creates a local filesystem storage.
// basePath is the directory to write files to.
// urlPrefix is the HTTP path prefix used to serve them (e.g. "/media").
func NewLocal(basePath, urlPrefix string) *Local {
	return &Local{
		basePath:  basePath,
		urlPrefix: urlPrefix,
	}
}

func (l *Local) path(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

// List walks the directory named by prefix. Keys are sorted bytewise to match
// S3 listing order, which WalkDir does not give for nested directories.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	root := filepath.Join(l.basePath, filepath.FromSlash(prefix))

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing files under %s: %w: %w", prefix, ErrUnavailable, err)
	}
	slices.Sort(keys)
	return filterKeys(prefix, keys), nil
}

// PresignGet returns the plain served URL. The file must exist so that a
// missing default image behaves the same way a failed signature would.
func (l *Local) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("presigning %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("presigning %s: %w: %w", key, ErrUnavailable, err)
	}
	return path.Join(l.urlPrefix, key), nil
}

func (l *Local) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	dest, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w: %w", key, ErrUnavailable, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating file %s: %w: %w", key, ErrUnavailable, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(dest)
		return fmt.Errorf("writing file %s: %w: %w", key, ErrUnavailable, err)
	}

	return nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file %s: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}
