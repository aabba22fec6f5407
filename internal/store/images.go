package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/moderation/internal/entity"
)

// Blobs holds image bytes keyed by image handle.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type imageRow struct {
	Handle       string `redis:"handle"`
	AppHandle    string `redis:"app_handle"`
	OwnerHandle  string `redis:"owner_handle"`
	Kind         string `redis:"kind"`
	Size         int64  `redis:"size"`
	Width        int    `redis:"width"`
	Height       int    `redis:"height"`
	ReviewStatus string `redis:"review_status"`
}

// Images keeps image metadata in Redis and bytes in blob storage.
type Images struct {
	client  *redis.Client
	blobs   Blobs
	cdnBase string
}

// NewImages creates an image store. cdnBase is the public base URL images
// are served from.
func NewImages(client *redis.Client, blobs Blobs, cdnBase string) *Images {
	return &Images{client: client, blobs: blobs, cdnBase: strings.TrimRight(cdnBase, "/")}
}

// blobKey is the object key for an image's bytes.
func blobKey(handle string) string {
	return "images/" + handle
}

// ReadImageMeta returns the image metadata, or nil if it does not exist.
func (s *Images) ReadImageMeta(ctx context.Context, handle string) (*entity.Image, error) {
	var row imageRow
	if err := s.client.HGetAll(ctx, ImagePrefix+handle).Scan(&row); err != nil {
		return nil, fmt.Errorf("store: read image %s: %w", handle, err)
	}
	if row.Handle == "" {
		return nil, nil
	}
	return &entity.Image{
		Handle:       row.Handle,
		AppHandle:    row.AppHandle,
		OwnerHandle:  row.OwnerHandle,
		Kind:         entity.ImageKind(row.Kind),
		Size:         row.Size,
		Width:        row.Width,
		Height:       row.Height,
		ReviewStatus: entity.ReviewStatus(row.ReviewStatus),
	}, nil
}

// UpdateImageMeta writes the review status of an image.
func (s *Images) UpdateImageMeta(ctx context.Context, img *entity.Image) error {
	err := update(ctx, s.client, ImagePrefix+img.Handle, map[string]any{
		"review_status": string(img.ReviewStatus),
	})
	if err != nil {
		return fmt.Errorf("store: update image %s: %w", img.Handle, err)
	}
	return nil
}

// ReadImage returns the stored bytes of an image.
func (s *Images) ReadImage(ctx context.Context, handle string) ([]byte, error) {
	data, err := s.blobs.Get(ctx, blobKey(handle))
	if err != nil {
		return nil, fmt.Errorf("store: read image bytes %s: %w", handle, err)
	}
	return data, nil
}

// ImageExists reports whether bytes are stored for handle.
func (s *Images) ImageExists(ctx context.Context, handle string) (bool, error) {
	ok, err := s.blobs.Exists(ctx, blobKey(handle))
	if err != nil {
		return false, fmt.Errorf("store: image exists %s: %w", handle, err)
	}
	return ok, nil
}

// CreateResizedImage stores a rendition's bytes, then its metadata.
func (s *Images) CreateResizedImage(ctx context.Context, img *entity.Image, data []byte) error {
	if err := s.blobs.Put(ctx, blobKey(img.Handle), data, "image/jpeg"); err != nil {
		return fmt.Errorf("store: put rendition %s: %w", img.Handle, err)
	}
	err := s.client.HSet(ctx, ImagePrefix+img.Handle,
		"handle", img.Handle,
		"app_handle", img.AppHandle,
		"owner_handle", img.OwnerHandle,
		"kind", string(img.Kind),
		"size", img.Size,
		"width", img.Width,
		"height", img.Height,
		"review_status", string(img.ReviewStatus),
	).Err()
	if err != nil {
		return fmt.Errorf("store: write rendition meta %s: %w", img.Handle, err)
	}
	return nil
}

// DeleteImage removes the bytes of an image and of its oversize rendition.
// Metadata stays so the image can still be tagged.
func (s *Images) DeleteImage(ctx context.Context, appHandle, ownerHandle, imageHandle string, kind entity.ImageKind) error {
	for _, h := range []string{imageHandle, entity.RenditionHandle(imageHandle, entity.ProfileHuge)} {
		if err := s.blobs.Delete(ctx, blobKey(h)); err != nil {
			return fmt.Errorf("store: delete %s image %s of %s/%s: %w", kind, h, appHandle, ownerHandle, err)
		}
	}
	return nil
}

// ReadImageCDNURL returns the public URL of an image, or "" when the image
// has no metadata or no CDN is configured.
func (s *Images) ReadImageCDNURL(ctx context.Context, handle string) (string, error) {
	if s.cdnBase == "" {
		return "", nil
	}
	n, err := s.client.Exists(ctx, ImagePrefix+handle).Result()
	if err != nil {
		return "", fmt.Errorf("store: image url %s: %w", handle, err)
	}
	if n == 0 {
		return "", nil
	}
	return s.cdnBase + "/" + blobKey(handle), nil
}
