package moderation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/imaging"
)

const (
	// MaxImageSize is the largest image, in bytes, providers accept.
	MaxImageSize = 4 << 20

	// MinImageDimension is the smallest width or height providers accept.
	MinImageDimension = 50
)

// ImageGate picks the rendition of an image that may be sent to a provider.
type ImageGate struct {
	images ImageStore
	logger *zap.Logger
}

// NewImageGate creates an ImageGate over the given image store.
func NewImageGate(images ImageStore, logger *zap.Logger) *ImageGate {
	return &ImageGate{images: images, logger: logger.Named("imagegate")}
}

// Eligible returns the handle to submit for the image, or "" when no
// rendition of it can be submitted. Oversized originals are replaced by the
// Huge rendition, which is synthesized on first use and must itself fit the
// limits. The image's review status is never touched.
func (g *ImageGate) Eligible(ctx context.Context, handle string) (string, error) {
	img, err := g.images.ReadImageMeta(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", handle, err)
	}
	if img == nil {
		g.logger.Info("image missing", zap.String("image", handle))
		return "", nil
	}

	if img.Size >= MaxImageSize {
		rendition, err := g.rendition(ctx, img, entity.ProfileHuge)
		if err != nil {
			return "", err
		}
		return g.fits(rendition), nil
	}
	return g.fits(img), nil
}

// fits returns the image's handle when it is within the provider limits.
func (g *ImageGate) fits(img *entity.Image) string {
	if img.Size >= MaxImageSize {
		g.logger.Info("image too large",
			zap.String("image", img.Handle),
			zap.Int64("size", img.Size))
		return ""
	}
	if img.Width < MinImageDimension || img.Height < MinImageDimension {
		g.logger.Info("image too small",
			zap.String("image", img.Handle),
			zap.Int("width", img.Width),
			zap.Int("height", img.Height))
		return ""
	}
	return img.Handle
}

// rendition returns the metadata of img's rendition, synthesizing and
// storing it when it does not exist yet.
func (g *ImageGate) rendition(ctx context.Context, img *entity.Image, profile entity.SizeProfile) (*entity.Image, error) {
	handle := entity.RenditionHandle(img.Handle, profile)
	exists, err := g.images.ImageExists(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("check rendition %s: %w", handle, err)
	}
	if exists {
		return g.existing(ctx, handle)
	}

	src, err := g.images.ReadImage(ctx, img.Handle)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", img.Handle, err)
	}
	r, err := imaging.Resize(src, profile.ShortSide)
	if err != nil {
		return nil, fmt.Errorf("resize image %s: %w", img.Handle, err)
	}
	rendition := &entity.Image{
		Handle:      handle,
		AppHandle:   img.AppHandle,
		OwnerHandle: img.OwnerHandle,
		Kind:        img.Kind,
		Size:        int64(len(r.Data)),
		Width:       r.Width,
		Height:      r.Height,
	}
	if err := g.images.CreateResizedImage(ctx, rendition, r.Data); err != nil {
		return nil, fmt.Errorf("store rendition %s: %w", handle, err)
	}
	g.logger.Info("synthesized rendition",
		zap.String("image", img.Handle),
		zap.String("rendition", handle),
		zap.Int("width", r.Width),
		zap.Int("height", r.Height),
		zap.Int64("size", rendition.Size))
	return rendition, nil
}

// existing reads a stored rendition's metadata, measuring its bytes when the
// metadata is missing.
func (g *ImageGate) existing(ctx context.Context, handle string) (*entity.Image, error) {
	meta, err := g.images.ReadImageMeta(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("read rendition %s: %w", handle, err)
	}
	if meta != nil {
		return meta, nil
	}
	data, err := g.images.ReadImage(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("read rendition %s: %w", handle, err)
	}
	w, h, err := imaging.Dimensions(data)
	if err != nil {
		return nil, fmt.Errorf("measure rendition %s: %w", handle, err)
	}
	return &entity.Image{Handle: handle, Size: int64(len(data)), Width: w, Height: h}, nil
}
