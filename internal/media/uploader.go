package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/arecko/backend/internal/metrics"
)

// Upload describes a stored upload.
type Upload struct {
	Name          string       `json:"name"`
	ThumbnailName string       `json:"thumbnail_name,omitempty"`
	ResourceType  ResourceType `json:"resource_type"`
}

// File is an incoming upload.
type File struct {
	Filename    string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Uploader stores uploads, transcoding videos first when a processor is set.
type Uploader struct {
	store   Store
	video   *VideoProcessor
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewUploader creates an uploader. video may be nil to store videos as-is.
func NewUploader(store Store, video *VideoProcessor, m *metrics.Metrics) *Uploader {
	return &Uploader{
		store:   store,
		video:   video,
		metrics: m,
		logger:  log.New(log.Writer(), "[MEDIA] ", log.LstdFlags),
	}
}

// SaveFile stores f under dir.
func (u *Uploader) SaveFile(ctx context.Context, dir string, f *File) (*Upload, error) {
	return u.Save(ctx, dir, f.Filename, f.Body, f.Size, f.ContentType)
}

// Store returns the underlying blob store.
func (u *Uploader) Store() Store {
	return u.store
}

// Save stores the file under dir. Videos with a known extension are
// compressed and get a thumbnail under dir/thumbnails.
func (u *Uploader) Save(ctx context.Context, dir, filename string, r io.Reader, size int64, contentType string) (*Upload, error) {
	if filename == "" {
		return nil, ErrInvalidName
	}
	name := path.Join(dir, path.Base(filename))

	if IsVideoFile(filename) && u.video != nil {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		up, err := u.saveVideo(ctx, dir, name, raw)
		if err != nil {
			return nil, err
		}
		if up != nil {
			return up, nil
		}
		r = bytes.NewReader(raw)
		size = int64(len(raw))
	}

	stored, err := u.store.Save(ctx, name, r, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	rt := Classify(stored)
	u.metrics.RecordUpload(string(rt))
	return &Upload{Name: stored, ResourceType: rt}, nil
}

// saveVideo returns a nil Upload without error when the video could not be
// processed, leaving the caller to store the original bytes.
func (u *Uploader) saveVideo(ctx context.Context, dir, name string, raw []byte) (*Upload, error) {
	start := time.Now()
	processed, err := u.video.Process(ctx, name, bytes.NewReader(raw))
	if err != nil {
		u.logger.Printf("Storing %s unprocessed: %v", name, err)
		return nil, nil
	}
	u.metrics.RecordVideoProcessing(processed.Compressed, time.Since(start).Seconds())

	stored, err := u.store.Save(ctx, path.Join(dir, processed.Name),
		bytes.NewReader(processed.Data), int64(len(processed.Data)), "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("store video: %w", err)
	}
	u.metrics.RecordUpload(string(ResourceVideo))

	up := &Upload{Name: stored, ResourceType: ResourceVideo}
	if processed.ThumbnailName != "" {
		thumb, err := u.store.Save(ctx, path.Join(dir, "thumbnails", processed.ThumbnailName),
			bytes.NewReader(processed.Thumbnail), int64(len(processed.Thumbnail)), "image/jpeg")
		if err != nil {
			u.logger.Printf("Thumbnail store failed for %s: %v", stored, err)
		} else {
			up.ThumbnailName = thumb
		}
	}
	return up, nil
}
