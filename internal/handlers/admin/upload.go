package admin

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidContentType is returned when the uploaded file is not an image.
	ErrInvalidContentType = errors.New("invalid content type: only image files are allowed")

	// ErrFileTooLarge is returned when the uploaded file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large: maximum 10MB")

	// ErrInvalidMagicBytes is returned when the file content does not match any supported image format.
	ErrInvalidMagicBytes = errors.New("invalid file: content does not match a supported image format")
)

const maxFileSize = 10 * 1024 * 1024 // 10 MB

// allowedContentTypes maps accepted MIME types to the extension used when
// the client supplies no usable filename.
var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// validateUpload checks size, declared content type and magic bytes, and
// rewinds file for the subsequent upload. It returns the content type.
func validateUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > maxFileSize {
		return "", ErrFileTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", ErrInvalidContentType
	}

	// Read first 512 bytes for magic byte detection
	magicBuf := make([]byte, 512)
	n, err := io.ReadFull(file, magicBuf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("reading file header: %w", err)
	}
	if !isValidImageMagicBytes(magicBuf[:n]) {
		return "", ErrInvalidMagicBytes
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seeking file: %w", err)
	}
	return contentType, nil
}

// uploadFilename sanitizes the client-supplied name, falling back to a
// random name with an extension matching contentType.
func uploadFilename(name, contentType string) string {
	sanitized := sanitizeFilename(name)
	if sanitized == "" || strings.Trim(sanitized, ".") == "" {
		return uuid.NewString() + allowedContentTypes[contentType]
	}
	return sanitized
}

// isValidImageMagicBytes checks the first bytes of a file against known image signatures.
func isValidImageMagicBytes(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}

	// JPEG: starts with FF D8 FF
	if buf[0] == 0xFF && buf[1] == 0xD8 && buf[2] == 0xFF {
		return true
	}

	// PNG: starts with 89 50 4E 47
	if buf[0] == 0x89 && buf[1] == 0x50 && buf[2] == 0x4E && buf[3] == 0x47 {
		return true
	}

	// GIF: starts with "GIF8"
	if string(buf[0:4]) == "GIF8" {
		return true
	}

	// WebP: "RIFF", 4 size bytes, then "WEBP"
	return len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WEBP"
}

// sanitizeFilename strips any directory part and keeps only alphanumerics,
// hyphens, underscores and dots.
func sanitizeFilename(name string) string {
	name = name[strings.LastIndexAny(name, `/\`)+1:]

	var sb strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
