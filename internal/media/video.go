package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrUnreadableVideo is returned when ffprobe cannot read the upload.
var ErrUnreadableVideo = errors.New("could not read video info")

// Toolchain reads stream info and runs ffmpeg jobs built with ffmpeg-go.
type Toolchain interface {
	Probe(ctx context.Context, input string) (string, error)
	Run(ctx context.Context, job *ffmpeg.Stream) error
}

// FFmpegTools runs ffprobe from PATH and ffmpeg from FFmpegPath.
type FFmpegTools struct {
	FFmpegPath string
}

func (t FFmpegTools) Probe(ctx context.Context, input string) (string, error) {
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		if timeout = time.Until(deadline); timeout <= 0 {
			return "", ctx.Err()
		}
	}
	return ffmpeg.ProbeWithTimeout(input, timeout, ffmpeg.KwArgs{})
}

// Run executes job under ctx so a cancelled upload kills the encoder.
func (t FFmpegTools) Run(ctx context.Context, job *ffmpeg.Stream) error {
	bin := t.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, bin, job.GetArgs()...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", bin, err, lastLine(out))
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}

// VideoInfo is the subset of ffprobe output used for processing.
type VideoInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds
	Size     int64   // bytes
	Codec    string
}

// VideoConfig tunes compression.
type VideoConfig struct {
	TargetWidth int // max output width, height keeps aspect ratio
	CRF         int // 18-28, higher is smaller
	FFmpegPath  string
}

// DefaultVideoConfig returns web delivery defaults.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		TargetWidth: 720,
		CRF:         28,
		FFmpegPath:  "ffmpeg",
	}
}

// ProcessedVideo is the output of Process.
type ProcessedVideo struct {
	Name          string
	Data          []byte
	Compressed    bool
	ThumbnailName string // empty when no thumbnail could be generated
	Thumbnail     []byte
	Info          VideoInfo
}

// VideoProcessor compresses uploads and extracts a thumbnail with ffmpeg.
type VideoProcessor struct {
	tools  Toolchain
	config VideoConfig
	logger *log.Logger
}

// NewVideoProcessor creates a processor. A nil toolchain uses FFmpegTools
// with cfg.FFmpegPath.
func NewVideoProcessor(tools Toolchain, cfg VideoConfig) *VideoProcessor {
	def := DefaultVideoConfig()
	if cfg.TargetWidth == 0 {
		cfg.TargetWidth = def.TargetWidth
	}
	if cfg.CRF == 0 {
		cfg.CRF = def.CRF
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if tools == nil {
		tools = FFmpegTools{FFmpegPath: cfg.FFmpegPath}
	}
	return &VideoProcessor{
		tools:  tools,
		config: cfg,
		logger: log.New(log.Writer(), "[VIDEO] ", log.LstdFlags),
	}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe reads dimensions, duration, size and codec of the first video stream.
func (p *VideoProcessor) Probe(ctx context.Context, input string) (*VideoInfo, error) {
	out, err := p.tools.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableVideo, err)
	}

	var probe probeOutput
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableVideo, err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
		size, _ := strconv.ParseInt(probe.Format.Size, 10, 64)
		return &VideoInfo{
			Width:    s.Width,
			Height:   s.Height,
			Duration: duration,
			Size:     size,
			Codec:    s.CodecName,
		}, nil
	}
	return nil, fmt.Errorf("%w: no video stream", ErrUnreadableVideo)
}

// Compress re-encodes input to H.264/AAC MP4 with fast start, scaling down to
// the target width.
func (p *VideoProcessor) Compress(ctx context.Context, input, output string, info *VideoInfo) error {
	if err := p.tools.Run(ctx, p.compressJob(input, output, info)); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return nil
}

func (p *VideoProcessor) compressJob(input, output string, info *VideoInfo) *ffmpeg.Stream {
	width := info.Width
	if width > p.config.TargetWidth || width <= 0 {
		width = p.config.TargetWidth
	}
	return ffmpeg.Input(input).
		Output(output, ffmpeg.KwArgs{
			"vcodec":   "libx264",
			"crf":      strconv.Itoa(p.config.CRF),
			"preset":   "medium",
			"acodec":   "aac",
			"b:a":      "128k",
			"movflags": "faststart",
			"vf":       fmt.Sprintf("scale=%d:-2", width),
		}).
		OverWriteOutput()
}

// Thumbnail grabs a single JPEG frame at offset seconds.
func (p *VideoProcessor) Thumbnail(ctx context.Context, input, output string, offset float64) error {
	if err := p.tools.Run(ctx, thumbnailJob(input, output, offset)); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	return nil
}

func thumbnailJob(input, output string, offset float64) *ffmpeg.Stream {
	return ffmpeg.Input(input, ffmpeg.KwArgs{"ss": strconv.FormatFloat(offset, 'f', 2, 64)}).
		Output(output, ffmpeg.KwArgs{
			"vframes": "1",
			"f":       "image2",
			"vcodec":  "mjpeg",
			"q:v":     "2",
		}).
		OverWriteOutput()
}

// Process writes the upload to a temp dir, compresses it and generates a
// thumbnail. If compression fails the original bytes are kept. The temp dir
// is always removed.
func (p *VideoProcessor) Process(ctx context.Context, name string, r io.Reader) (*ProcessedVideo, error) {
	tmp, err := os.MkdirTemp("", "arecko-video-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, "input_video")
	if err := writeFile(input, r); err != nil {
		return nil, err
	}

	info, err := p.Probe(ctx, input)
	if err != nil {
		p.logger.Printf("Could not read video info, skipping processing: %v", err)
		return nil, err
	}
	p.logger.Printf("Processing: %dx%d, %.1fs, %.1fMB", info.Width, info.Height, info.Duration, mb(info.Size))

	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "video"
	}

	result := &ProcessedVideo{Name: base + ".mp4", Info: *info}

	compressed := filepath.Join(tmp, "compressed.mp4")
	source := compressed
	if err := p.Compress(ctx, input, compressed, info); err != nil {
		p.logger.Printf("Compression failed, using original: %v", err)
		source = input
	} else {
		result.Compressed = true
	}

	thumb := filepath.Join(tmp, "thumbnail.jpg")
	offset := 1.0
	if half := info.Duration / 2; half < offset {
		offset = half
	}
	if err := p.Thumbnail(ctx, input, thumb, offset); err != nil {
		p.logger.Printf("Thumbnail error: %v", err)
	}

	result.Data, err = os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read processed video: %w", err)
	}
	if result.Compressed && info.Size > 0 {
		reduction := float64(info.Size-int64(len(result.Data))) / float64(info.Size) * 100
		p.logger.Printf("Compressed: %.1fMB -> %.1fMB (%.1f%% reduction)", mb(info.Size), mb(int64(len(result.Data))), reduction)
	}

	if data, err := os.ReadFile(thumb); err == nil {
		result.Thumbnail = data
		result.ThumbnailName = base + "_thumb.jpg"
	}

	return result, nil
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	return f.Close()
}

func mb(n int64) float64 {
	return float64(n) / 1024 / 1024
}
