package media

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/arecko/backend/internal/metrics"
)

// fakeTools imitates ffprobe and ffmpeg. Jobs write fixed bytes to their
// output file, the last argument that is not a flag.
type fakeTools struct {
	probeJSON     string
	failProbe     bool
	failCompress  bool
	failThumbnail bool
	calls         [][]string
}

func (f *fakeTools) Probe(_ context.Context, _ string) (string, error) {
	if f.failProbe {
		return "", errors.New("invalid data found")
	}
	return f.probeJSON, nil
}

func (f *fakeTools) Run(_ context.Context, job *ffmpeg.Stream) error {
	args := job.GetArgs()
	f.calls = append(f.calls, args)
	out := outputFile(args)

	if slices.Contains(args, "-vframes") {
		if f.failThumbnail {
			return errors.New("no frame")
		}
		return os.WriteFile(out, []byte("jpeg"), 0o644)
	}
	if f.failCompress {
		return errors.New("encoder missing")
	}
	return os.WriteFile(out, []byte("small"), 0o644)
}

func outputFile(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return ""
}

// flagValue returns the argument following flag.
func flagValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

const probe1080 = `{"streams":[{"codec_type":"audio","codec_name":"aac"},
 {"codec_type":"video","codec_name":"h264","width":1920,"height":1080}],
 "format":{"duration":"12.5","size":"1048576"}}`

func TestVideoProcessor_Probe(t *testing.T) {
	p := NewVideoProcessor(&fakeTools{probeJSON: probe1080}, VideoConfig{})
	info, err := p.Probe(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, VideoInfo{Width: 1920, Height: 1080, Duration: 12.5, Size: 1048576, Codec: "h264"}, *info)
}

func TestVideoProcessor_ProbeNoVideoStream(t *testing.T) {
	p := NewVideoProcessor(&fakeTools{probeJSON: `{"streams":[{"codec_type":"audio"}],"format":{}}`}, VideoConfig{})
	_, err := p.Probe(context.Background(), "in")
	assert.ErrorIs(t, err, ErrUnreadableVideo)
}

func TestVideoProcessor_JobArgs(t *testing.T) {
	p := NewVideoProcessor(&fakeTools{}, VideoConfig{CRF: 23})

	compress := p.compressJob("in.mov", "out.mp4", &VideoInfo{Width: 1920}).GetArgs()
	assert.Equal(t, "in.mov", flagValue(compress, "-i"))
	assert.Equal(t, "23", flagValue(compress, "-crf"))
	assert.Equal(t, "aac", flagValue(compress, "-acodec"))
	assert.Equal(t, "faststart", flagValue(compress, "-movflags"))
	assert.Contains(t, compress, "-y")
	assert.Equal(t, "out.mp4", outputFile(compress))

	thumb := thumbnailJob("in.mov", "thumb.jpg", 0.5).GetArgs()
	ss, in := slices.Index(thumb, "-ss"), slices.Index(thumb, "-i")
	require.True(t, ss >= 0 && in > ss, "seek before the input for a fast seek: %v", thumb)
	assert.Equal(t, "mjpeg", flagValue(thumb, "-vcodec"))
	assert.Equal(t, "thumb.jpg", outputFile(thumb))
}

func TestVideoProcessor_ProcessScalesAndThumbnails(t *testing.T) {
	runner := &fakeTools{probeJSON: probe1080}
	p := NewVideoProcessor(runner, VideoConfig{})

	out, err := p.Process(context.Background(), "stories/holiday.mov", strings.NewReader("raw-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "holiday.mp4", out.Name)
	assert.True(t, out.Compressed)
	assert.Equal(t, "small", string(out.Data))
	assert.Equal(t, "holiday_thumb.jpg", out.ThumbnailName)
	assert.Equal(t, "jpeg", string(out.Thumbnail))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "scale=720:-2", flagValue(runner.calls[0], "-vf"))
	assert.Equal(t, "libx264", flagValue(runner.calls[0], "-vcodec"))
	assert.Equal(t, "1.00", flagValue(runner.calls[1], "-ss"))
}

func TestVideoProcessor_KeepsNarrowWidthAndShortOffset(t *testing.T) {
	runner := &fakeTools{probeJSON: `{"streams":[{"codec_type":"video","width":480,"height":640}],"format":{"duration":"1.0","size":"10"}}`}
	p := NewVideoProcessor(runner, VideoConfig{})

	_, err := p.Process(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "scale=480:-2", flagValue(runner.calls[0], "-vf"))
	assert.Equal(t, "0.50", flagValue(runner.calls[1], "-ss"))
}

func TestVideoProcessor_CompressionFailureKeepsOriginal(t *testing.T) {
	p := NewVideoProcessor(&fakeTools{probeJSON: probe1080, failCompress: true, failThumbnail: true}, VideoConfig{})

	out, err := p.Process(context.Background(), "clip.avi", strings.NewReader("original"))
	require.NoError(t, err)
	assert.False(t, out.Compressed)
	assert.Equal(t, "original", string(out.Data))
	assert.Empty(t, out.ThumbnailName)
}

func TestUploader_VideoIsProcessedAndRelocated(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	up := NewUploader(store, NewVideoProcessor(&fakeTools{probeJSON: probe1080}, VideoConfig{}), m)

	res, err := up.Save(context.Background(), "stories", "party.MOV", strings.NewReader("raw"), 3, "video/quicktime")
	require.NoError(t, err)
	assert.Equal(t, ResourceVideo, res.ResourceType)
	assert.True(t, strings.HasPrefix(res.Name, "stories/videos/"), res.Name)
	assert.True(t, strings.HasSuffix(res.Name, "_party.mp4"), res.Name)
	assert.True(t, strings.HasPrefix(res.ThumbnailName, "stories/thumbnails/"), res.ThumbnailName)
	assert.Equal(t, ResourceImage, Classify(res.ThumbnailName))
}

func TestUploader_UnreadableVideoStoredAsIs(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	up := NewUploader(store, NewVideoProcessor(&fakeTools{failProbe: true}, VideoConfig{}), nil)

	res, err := up.Save(context.Background(), "stories", "broken.mp4", strings.NewReader("junk"), 4, "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Name, "stories/videos/"), res.Name)
	assert.Empty(t, res.ThumbnailName)

	rc, err := store.Open(context.Background(), res.Name)
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 8)
	n, _ := rc.Read(buf)
	assert.Equal(t, "junk", string(buf[:n]))
}

func TestUploader_Image(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	up := NewUploader(store, nil, nil)

	res, err := up.Save(context.Background(), "profiles", "me.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, ResourceImage, res.ResourceType)
	assert.True(t, strings.HasPrefix(res.Name, "profiles/"))
}
