// Package usecase implements cover image ingestion.
package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webp decoder
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"grimoire/internal/feature/images/domain/entity"
	"grimoire/internal/platform/logging"
	"grimoire/internal/platform/metrics"
)

var (
	// ErrProcessing wraps every failure between receiving an upload and storing the result.
	ErrProcessing = errors.New("image processing failed")

	// ErrUnsupportedMediaType is returned for uploads outside the accepted MIME types.
	ErrUnsupportedMediaType = errors.New("unsupported file type")

	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel budget.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

var acceptedMediaTypes = map[string]struct{}{
	"image/jpg":  {},
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

const maxNameLength = 100

// defaultMaxPixels bounds the decoded bitmap (about 160 MiB as NRGBA).
const defaultMaxPixels = 40_000_000

// ImageStore persists processed covers.
type ImageStore interface {
	// Put stores r under key and returns its public URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Options tune the pipeline output.
type Options struct {
	MaxWidth int
	Quality  int
	// MaxPixels caps width*height before decoding; 0 means 40 megapixels.
	MaxPixels int
	// WorkDir holds intermediate files; empty means os.TempDir().
	WorkDir string
}

// Pipeline turns uploads into stored, normalized JPEG covers.
type Pipeline struct {
	store     ImageStore
	maxWidth  int
	quality   int
	maxPixels int
	workDir   string
	now       func() time.Time
}

// NewPipeline returns a pipeline writing to store.
// Width defaults to 500 and quality to 70.
func NewPipeline(store ImageStore, opts Options) *Pipeline {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 500
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 70
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Pipeline{
		store:     store,
		maxWidth:  opts.MaxWidth,
		quality:   opts.Quality,
		maxPixels: opts.MaxPixels,
		workDir:   opts.WorkDir,
		now:       time.Now,
	}
}

// AcceptedMediaType reports whether uploads of contentType are processed.
func AcceptedMediaType(contentType string) bool {
	_, ok := acceptedMediaTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// SanitizeName derives a storage-safe base name from an uploaded filename.
func SanitizeName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, " ", "_")

	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), base)
	if err == nil {
		base = stripped
	}
	base = unsafeNameChars.ReplaceAllString(base, "")
	if len(base) > maxNameLength {
		base = base[:maxNameLength]
	}
	if base == "" || base == "_" || base == "-" {
		return "image"
	}
	return base
}

// Process resizes the upload to at most maxWidth pixels wide, re-encodes it as
// JPEG and stores it under <name>_<unixMillis>.jpg.
func (p *Pipeline) Process(ctx context.Context, up entity.Upload) (*entity.StoredImage, error) {
	start := time.Now()
	img, err := p.process(ctx, up)
	if err != nil {
		metrics.RecordImageProcessing("error", time.Since(start))
		if errors.Is(err, ErrUnsupportedMediaType) || errors.Is(err, ErrImageTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	metrics.RecordImageProcessing("ok", time.Since(start))
	return img, nil
}

func (p *Pipeline) process(ctx context.Context, up entity.Upload) (*entity.StoredImage, error) {
	if !AcceptedMediaType(up.ContentType) {
		return nil, ErrUnsupportedMediaType
	}
	if up.Open == nil {
		return nil, errors.New("upload has no content")
	}
	key := fmt.Sprintf("%s_%d.jpg", SanitizeName(up.Filename), p.now().UnixMilli())

	tmpPath, err := p.writeIntermediate(up)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Warn("failed to remove intermediate upload", "path", tmpPath, "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.checkDimensions(tmpPath); err != nil {
		return nil, err
	}
	src, err := imaging.Open(tmpPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", up.Filename, err)
	}
	out := p.fit(src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	url, err := p.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return &entity.StoredImage{Key: key, URL: url}, nil
}

func (p *Pipeline) writeIntermediate(up entity.Upload) (string, error) {
	src, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(p.workDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create intermediate file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write intermediate file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close intermediate file: %w", err)
	}
	return tmp.Name(), nil
}

// checkDimensions reads only the image header and rejects bitmaps over the pixel budget.
func (p *Pipeline) checkDimensions(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open intermediate file: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(p.maxPixels) {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// fit shrinks img to maxWidth keeping the aspect ratio. Smaller images are kept as is.
func (p *Pipeline) fit(img image.Image) image.Image {
	if img.Bounds().Dx() <= p.maxWidth {
		return img
	}
	return imaging.Resize(img, p.maxWidth, 0, imaging.Lanczos)
}

// Release deletes a stored cover. Releasing an absent key succeeds.
func (p *Pipeline) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
