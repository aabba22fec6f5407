package entity

// Topic is a top-level post.
type Topic struct {
	Handle       string
	AppHandle    string
	UserHandle   string
	Title        string
	Text         string
	BlobKind     BlobKind
	BlobHandle   string
	ReviewStatus ReviewStatus
}

// Comment is a response to a topic.
type Comment struct {
	Handle       string
	AppHandle    string
	UserHandle   string
	TopicHandle  string
	Text         string
	BlobKind     BlobKind
	BlobHandle   string
	ReviewStatus ReviewStatus
}

// Reply is a response to a comment. Replies never carry media.
type Reply struct {
	Handle        string
	AppHandle     string
	UserHandle    string
	CommentHandle string
	Text          string
	ReviewStatus  ReviewStatus
}

// UserProfile is a user's per-app profile.
type UserProfile struct {
	AppHandle    string
	UserHandle   string
	FirstName    string
	LastName     string
	Bio          string
	PhotoHandle  string
	ReviewStatus ReviewStatus
}

// Image is the metadata of a stored image. The bytes live in blob storage.
type Image struct {
	Handle       string
	AppHandle    string
	OwnerHandle  string
	Kind         ImageKind
	Size         int64
	Width        int
	Height       int
	ReviewStatus ReviewStatus
}

// SizeProfile names a pre-defined rendition of an image.
type SizeProfile struct {
	Name string
	// ShortSide caps the shorter side of the rendition in pixels.
	ShortSide int
}

// ProfileHuge is the large-but-bounded rendition used when an original is
// too big for a review provider.
var ProfileHuge = SizeProfile{Name: "huge", ShortSide: 1280}

// RenditionHandle returns the handle of the given rendition of an image.
func RenditionHandle(imageHandle string, profile SizeProfile) string {
	return imageHandle + "-" + profile.Name
}
