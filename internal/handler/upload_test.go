package handler

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/msomdec/gallery-manager/internal/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	img.SetGray(0, 0, color.Gray{Y: 200})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateUpload_SniffsType(t *testing.T) {
	data := pngBytes(t, 5, 4)

	// The client name lies about the format; the bytes decide.
	upload, err := validateUpload(domain.UploadPolicy{AllowedMimeTypes: []string{"image/png"}}, "photo.jpg", data)
	if err != nil {
		t.Fatalf("validateUpload: %v", err)
	}
	if upload.Extension != "png" || upload.MimeType != "image/png" {
		t.Fatalf("expected png/image/png, got %q/%q", upload.Extension, upload.MimeType)
	}
	if upload.Filename != "photo.jpg" || upload.Size != int64(len(data)) {
		t.Fatalf("unexpected upload %+v", upload)
	}
	body, _ := io.ReadAll(upload.Body)
	if !bytes.Equal(body, data) {
		t.Fatal("expected body to carry the uploaded bytes")
	}
}

func TestValidateUpload_Rejections(t *testing.T) {
	img := pngBytes(t, 5, 4)

	tests := []struct {
		name   string
		policy domain.UploadPolicy
		data   []byte
	}{
		{"empty", domain.UploadPolicy{}, nil},
		{"too large", domain.UploadPolicy{MaxSize: 10}, img},
		{"mime", domain.UploadPolicy{AllowedMimeTypes: []string{"image/jpeg"}}, img},
		{"extension", domain.UploadPolicy{AllowedExtensions: []string{"jpg", "gif"}}, img},
		{"min width", domain.UploadPolicy{MinWidth: 6}, img},
		{"min height", domain.UploadPolicy{MinHeight: 5}, img},
		{"max width", domain.UploadPolicy{MaxWidth: 4}, img},
		{"max height", domain.UploadPolicy{MaxHeight: 3}, img},
		{"undecodable", domain.UploadPolicy{MinWidth: 1}, []byte("GIF89a but not really")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateUpload(tt.policy, "f", tt.data)
			if !errors.Is(err, domain.ErrValidationRejected) {
				t.Fatalf("expected ErrValidationRejected, got %v", err)
			}
		})
	}
}

func TestValidateUpload_ExtensionCaseAndDot(t *testing.T) {
	policy := domain.UploadPolicy{AllowedExtensions: []string{".PNG"}, MinWidth: 5, MaxWidth: 5}
	if _, err := validateUpload(policy, "f", pngBytes(t, 5, 4)); err != nil {
		t.Fatalf("validateUpload: %v", err)
	}
}
