// Package media classifies stored media names as image or video, keeps video
// blobs under a dedicated sub-path, and builds delivery URLs from the stored
// name alone.
package media

import (
	"net/url"
	"strings"
)

// ResourceType is the storage provider's classification of a blob.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

// DeliveryType is the access type used in every delivery URL.
const DeliveryType = "upload"

const (
	storiesPrefix = "stories/"
	videosPrefix  = "videos/"
)

var videoExtensions = []string{".mp4", ".mov", ".avi", ".webm", ".mkv", ".flv", ".wmv", ".m4v"}

// IsVideoFile reports whether name has a known video extension. Upload-time
// decisions (transcoding) use this extension-only test.
func IsVideoFile(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Classify returns the resource type for a stored name. A name is a video if
// it has a video extension or lives under a "videos/" path segment; anything
// else is an image.
func Classify(name string) ResourceType {
	if IsVideoFile(name) {
		return ResourceVideo
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, videosPrefix) || strings.Contains(lower, "/"+videosPrefix) {
		return ResourceVideo
	}
	return ResourceImage
}

// ResolveSavePath moves video names under "stories/" into "stories/videos/".
// It is idempotent.
func ResolveSavePath(name string) string {
	if Classify(name) != ResourceVideo {
		return name
	}
	if !strings.Contains(name, storiesPrefix) || strings.Contains(name, storiesPrefix+videosPrefix) {
		return name
	}
	return strings.Replace(name, storiesPrefix, storiesPrefix+videosPrefix, 1)
}

// LocalBaseURL is the media route served by the API itself.
const LocalBaseURL = "/media/files"

// Resolver builds delivery URLs of the form
// <base>/<cloud>/<resource type>/upload/<name>.
type Resolver struct {
	BaseURL   string
	CloudName string // optional, external bases only
}

// NewResolver creates a resolver. An empty base defaults to LocalBaseURL.
// The local route has no cloud segment, so cloudName is dropped for it.
func NewResolver(baseURL, cloudName string) *Resolver {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = LocalBaseURL
	}
	if baseURL == LocalBaseURL {
		cloudName = ""
	}
	return &Resolver{
		BaseURL:   baseURL,
		CloudName: strings.Trim(cloudName, "/"),
	}
}

// BuildDeliveryURL returns the URL for a stored name and false when the name
// is empty.
func (r *Resolver) BuildDeliveryURL(name string) (string, bool) {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(r.BaseURL)
	if r.CloudName != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(r.CloudName))
	}
	b.WriteString("/")
	b.WriteString(string(Classify(name)))
	b.WriteString("/")
	b.WriteString(DeliveryType)
	for _, seg := range strings.Split(name, "/") {
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	return b.String(), true
}

// URLFor is BuildDeliveryURL for optional names, returning nil when absent.
func (r *Resolver) URLFor(name *string) *string {
	if name == nil {
		return nil
	}
	u, ok := r.BuildDeliveryURL(*name)
	if !ok {
		return nil
	}
	return &u
}
