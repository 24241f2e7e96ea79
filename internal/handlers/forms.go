package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/arecko/backend/internal/media"
)

// maxFormMemory is held in memory before multipart parts spill to disk.
const maxFormMemory = 32 << 20

// parseForm accepts multipart and urlencoded bodies, capped at maxBytes.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return errBadRequest
	}
	return nil
}

// formFile returns the uploaded file under field, or nil when none was sent.
// The caller closes the returned file.
func formFile(r *http.Request, field string) (*media.File, multipart.File, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errBadRequest
	}
	if hdr.Size == 0 {
		f.Close()
		return nil, nil, nil
	}
	return &media.File{
		Filename:    hdr.Filename,
		Body:        f,
		Size:        hdr.Size,
		ContentType: hdr.Header.Get("Content-Type"),
	}, f, nil
}
