// Package entity defines the data shared by the moderation core and the
// adapters that persist it: content entities owned by the platform stores,
// moderation transactions and records, abuse reports, and per-app policy.
package entity

// ReviewStatus is the moderation state carried by every reviewable entity.
// The zero value reads as StatusActive.
type ReviewStatus string

const (
	StatusActive ReviewStatus = "active"
	StatusClean  ReviewStatus = "clean"
	StatusMature ReviewStatus = "mature"
	StatusBanned ReviewStatus = "banned"
	StatusFailed ReviewStatus = "failed"
)

// Normalize maps the unset status to StatusActive.
func (s ReviewStatus) Normalize() ReviewStatus {
	if s == "" {
		return StatusActive
	}
	return s
}

// Valid reports whether s is one of the known statuses (or unset).
func (s ReviewStatus) Valid() bool {
	switch s.Normalize() {
	case StatusActive, StatusClean, StatusMature, StatusBanned, StatusFailed:
		return true
	}
	return false
}

// BlobKind describes the media attached to a topic or comment.
type BlobKind string

const (
	BlobKindImage BlobKind = "image"
	BlobKindVideo BlobKind = "video"
	BlobKindAudio BlobKind = "audio"
)

// ImageKind tells the image store which container an image lives in.
type ImageKind string

const (
	ImageKindContentBlob ImageKind = "content_blob"
	ImageKindUserPhoto   ImageKind = "user_photo"
	ImageKindAppIcon     ImageKind = "app_icon"
)

// ContentType identifies which content store a moderation target lives in.
type ContentType string

const (
	ContentTopic   ContentType = "topic"
	ContentComment ContentType = "comment"
	ContentReply   ContentType = "reply"
	ContentUnknown ContentType = "unknown"
)

// ParseContentType returns ContentUnknown for anything it does not recognise.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case ContentTopic, ContentComment, ContentReply:
		return ContentType(s)
	}
	return ContentUnknown
}
