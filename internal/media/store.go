// Package media stores user-uploaded binaries such as avatars.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAvatarBytes bounds avatar uploads when no explicit limit is configured.
const DefaultMaxAvatarBytes int64 = 5 << 20

var (
	// ErrEmptyUpload indicates an upload without content.
	ErrEmptyUpload = errors.New("media: upload is empty")
	// ErrUploadTooLarge indicates an upload above the configured limit.
	ErrUploadTooLarge = errors.New("media: upload exceeds size limit")
	// ErrUnsupportedType indicates a non-image avatar.
	ErrUnsupportedType = errors.New("media: unsupported content type")
	// ErrMissingObjectID indicates a delete without an object id.
	ErrMissingObjectID = errors.New("media: object id is required")
)

// Upload describes a single object to store.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object identifies a stored upload. ID is what Delete expects.
type Object struct {
	URL string
	ID  string
}

// Store persists uploads and removes them again.
type Store interface {
	Upload(ctx context.Context, upload Upload) (Object, error)
	Delete(ctx context.Context, objectID string) error
}

// ReadImage buffers an upload up to maxBytes and checks that it is an image.
// The sniffed content type wins over the declared one.
func ReadImage(upload Upload, maxBytes int64) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAvatarBytes
	}
	if upload.Body == nil {
		return nil, "", ErrEmptyUpload
	}
	if upload.Size > maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, upload.Size)
	}

	data, err := io.ReadAll(io.LimitReader(upload.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("media: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyUpload
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrUploadTooLarge, maxBytes)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return data, contentType, nil
}

// avatarKey builds avatars/YYYY/MM/DD/<uuid><ext>.
func avatarKey(now time.Time, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		if candidates, err := mime.ExtensionsByType(contentType); err == nil && len(candidates) > 0 {
			ext = candidates[0]
		}
	}
	return fmt.Sprintf("avatars/%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}
