package admin

import (
	"regexp"
	"testing"
)

// --------------------------------------------------------------------------
// isValidImageMagicBytes
// --------------------------------------------------------------------------

func TestIsValidImageMagicBytes(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{"JPEG JFIF", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, true},
		{"JPEG EXIF", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x00}, true},
		{"PNG", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, true},
		{"GIF89a", []byte("GIF89a"), true},
		{"WebP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'}, true},
		{"three bytes", []byte{0xFF, 0xD8, 0xFF}, false},
		{"nil", nil, false},
		{"PDF", []byte("%PDF-1.7"), false},
		{"RIFF but AVI", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'A', 'V', 'I', ' '}, false},
		{"truncated WebP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidImageMagicBytes(tt.buf); got != tt.want {
				t.Errorf("isValidImageMagicBytes() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --------------------------------------------------------------------------
// sanitizeFilename / uploadFilename
// --------------------------------------------------------------------------

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo.jpg", "myphoto.jpg"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\uploads\file.png`, "file.png"},
		{"photo (1) [final].jpg", "photo1final.jpg"},
		{"café-über.png", "caf-ber.png"},
		{"my-file_name.webp", "my-file_name.webp"},
		{"MyFile.PNG", "MyFile.PNG"},
		{"", ""},
		{"!@#$%", ""},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.want {
			t.Errorf("sanitizeFilename(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestUploadFilename(t *testing.T) {
	if got := uploadFilename("front view.jpg", "image/jpeg"); got != "frontview.jpg" {
		t.Errorf("got %q, want %q", got, "frontview.jpg")
	}

	generated := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.png$`)
	for _, name := range []string{"", ".", "..", "***", "a/.."} {
		if got := uploadFilename(name, "image/png"); !generated.MatchString(got) {
			t.Errorf("uploadFilename(%q): got %q, want generated .png name", name, got)
		}
	}
}
