package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("media not found")
	ErrInvalidName = errors.New("invalid media name")
)

// Store persists media blobs by name.
type Store interface {
	// Save writes r under a unique name derived from name and returns the
	// stored name. Video names are relocated by ResolveSavePath.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// storageName prefixes the file name with a short random id and applies the
// video sub-path rule.
func storageName(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	dir, file := path.Split(clean)
	file = strings.ReplaceAll(file, " ", "_")
	unique := fmt.Sprintf("%s%s_%s", dir, uuid.New().String()[:8], file)
	return ResolveSavePath(unique), nil
}

// cleanName rejects names that would escape the media root.
func cleanName(name string) (string, error) {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	if name == "" {
		return "", ErrInvalidName
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}
