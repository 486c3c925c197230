package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Images larger than this are not inlined as data URLs; they would bloat both
// the record and the createProject calldata.
const maxInlineBytes = 32 << 10

// ObjectStore stores an object and reports where it is served from.
// storage.S3Client satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, bucket, key string) error
	ObjectURL(bucket, key string) string
}

// ResolverConfig configures image resolution
type ResolverConfig struct {
	Bucket         string
	PlaceholderURL string
	Timeout        time.Duration
}

// Resolver produces a cover image reference for a new project. Generation and
// upload are both optional; every failure degrades to the placeholder.
type Resolver struct {
	generator Generator
	store     ObjectStore
	cfg       ResolverConfig
	logger    *zap.Logger
}

func NewResolver(generator Generator, store ObjectStore, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Resolver{generator: generator, store: store, cfg: cfg, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, key, description string) string {
	if r.generator == nil {
		return r.cfg.PlaceholderURL
	}

	genCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	img, err := r.generator.Generate(genCtx, MakeVisualPrompt(description))
	if err != nil {
		r.logger.Warn("cover image generation failed, using placeholder", zap.String("project_id", key), zap.Error(err))
		return r.cfg.PlaceholderURL
	}

	if r.store != nil && r.cfg.Bucket != "" {
		objectKey := coverKey(key, extensionFor(img.MIMEType))
		if err := r.store.Upload(genCtx, r.cfg.Bucket, objectKey, img.MIMEType, bytes.NewReader(img.Data)); err != nil {
			r.logger.Warn("cover image upload failed, using placeholder", zap.String("project_id", key), zap.Error(err))
			return r.cfg.PlaceholderURL
		}
		url := r.store.ObjectURL(r.cfg.Bucket, objectKey)
		r.logger.Info("cover image stored", zap.String("project_id", key), zap.String("url", url))
		return url
	}

	if len(img.Data) > maxInlineBytes {
		r.logger.Warn("generated cover image too large to inline, using placeholder",
			zap.String("project_id", key),
			zap.Int("bytes", len(img.Data)),
		)
		return r.cfg.PlaceholderURL
	}
	return DataURL(img)
}

// Discard deletes the cover uploaded for a project that was never created.
// References to anything other than that project's stored cover are left alone.
func (r *Resolver) Discard(ctx context.Context, key, imageURL string) {
	if r.store == nil || r.cfg.Bucket == "" || imageURL == "" {
		return
	}
	for _, ext := range coverExtensions {
		objectKey := coverKey(key, ext)
		if r.store.ObjectURL(r.cfg.Bucket, objectKey) != imageURL {
			continue
		}
		if err := r.store.Delete(ctx, r.cfg.Bucket, objectKey); err != nil {
			r.logger.Warn("failed to delete orphaned cover image", zap.String("project_id", key), zap.Error(err))
			return
		}
		r.logger.Info("orphaned cover image deleted", zap.String("project_id", key), zap.String("url", imageURL))
		return
	}
}

// DataURL encodes an image as a base64 data URL
func DataURL(img *Image) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data))
}

var coverExtensions = []string{".png", ".jpg", ".webp", ".gif"}

func coverKey(projectKey, ext string) string {
	return fmt.Sprintf("projects/%s/cover%s", projectKey, ext)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
