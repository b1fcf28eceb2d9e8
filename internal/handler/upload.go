package handler

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// validateUpload checks data against policy and builds the upload handed to
// the gallery. MIME type and extension come from the bytes, never from the
// client-supplied file name or header.
func validateUpload(policy domain.UploadPolicy, filename string, data []byte) (domain.Upload, error) {
	if len(data) == 0 {
		return domain.Upload{}, fmt.Errorf("%w: empty file", domain.ErrValidationRejected)
	}
	if policy.MaxSize > 0 && int64(len(data)) > policy.MaxSize {
		return domain.Upload{}, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidationRejected, policy.MaxSize)
	}

	mt := mimetype.Detect(data)
	if len(policy.AllowedMimeTypes) > 0 && !slices.ContainsFunc(policy.AllowedMimeTypes, mt.Is) {
		return domain.Upload{}, fmt.Errorf("%w: file type %s is not allowed", domain.ErrValidationRejected, mt.String())
	}

	ext := strings.TrimPrefix(mt.Extension(), ".")
	if len(policy.AllowedExtensions) > 0 && !slices.ContainsFunc(policy.AllowedExtensions, func(allowed string) bool {
		return strings.EqualFold(strings.TrimPrefix(allowed, "."), ext)
	}) {
		return domain.Upload{}, fmt.Errorf("%w: extension %q is not allowed", domain.ErrValidationRejected, ext)
	}

	if policy.MinWidth > 0 || policy.MinHeight > 0 || policy.MaxWidth > 0 || policy.MaxHeight > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return domain.Upload{}, fmt.Errorf("%w: unreadable image", domain.ErrValidationRejected)
		}
		if err := checkDimensions(policy, cfg.Width, cfg.Height); err != nil {
			return domain.Upload{}, err
		}
	}

	return domain.Upload{
		Body:      bytes.NewReader(data),
		Filename:  filename,
		Extension: ext,
		Size:      int64(len(data)),
		MimeType:  mt.String(),
	}, nil
}

func checkDimensions(policy domain.UploadPolicy, width, height int) error {
	switch {
	case policy.MinWidth > 0 && width < policy.MinWidth:
		return fmt.Errorf("%w: image is narrower than %dpx", domain.ErrValidationRejected, policy.MinWidth)
	case policy.MinHeight > 0 && height < policy.MinHeight:
		return fmt.Errorf("%w: image is shorter than %dpx", domain.ErrValidationRejected, policy.MinHeight)
	case policy.MaxWidth > 0 && width > policy.MaxWidth:
		return fmt.Errorf("%w: image is wider than %dpx", domain.ErrValidationRejected, policy.MaxWidth)
	case policy.MaxHeight > 0 && height > policy.MaxHeight:
		return fmt.Errorf("%w: image is taller than %dpx", domain.ErrValidationRejected, policy.MaxHeight)
	}
	return nil
}
