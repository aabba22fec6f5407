package moderation

import (
	"context"
	"fmt"

	"github.com/whisper/moderation/internal/entity"
)

// Target is something that can be reviewed and enforced against: a topic,
// comment, reply, user profile or image. Targets are built with the
// constructors on Enforcer and read their entity fresh on every use.
type Target interface {
	String() string

	// label is the metrics label for the variant.
	label() string
	// load reads the entity. It returns false when the entity is gone.
	load(ctx context.Context) (bool, error)
	status() entity.ReviewStatus
	// payload returns the text fragments and attached image handle in
	// submission order. Only valid after a successful load.
	payload() ([]string, string)
	// ban applies the ban to a loaded entity, cascading to attached images.
	ban(ctx context.Context, e *Enforcer) error
	// tag overwrites the review status of a loaded entity and nothing else.
	tag(ctx context.Context, status entity.ReviewStatus) error
}

type topicTarget struct {
	stores *Stores
	handle string
	topic  *entity.Topic
}

func (t *topicTarget) String() string { return "topic " + t.handle }
func (t *topicTarget) label() string  { return string(entity.ContentTopic) }

func (t *topicTarget) load(ctx context.Context) (bool, error) {
	topic, err := t.stores.Content.ReadTopic(ctx, t.handle)
	if err != nil {
		return false, fmt.Errorf("read topic %s: %w", t.handle, err)
	}
	t.topic = topic
	return topic != nil, nil
}

func (t *topicTarget) status() entity.ReviewStatus { return t.topic.ReviewStatus.Normalize() }

func (t *topicTarget) payload() ([]string, string) {
	return []string{t.topic.Title, t.topic.Text}, attachedImage(t.topic.BlobKind, t.topic.BlobHandle)
}

func (t *topicTarget) ban(ctx context.Context, e *Enforcer) error {
	if img := attachedImage(t.topic.BlobKind, t.topic.BlobHandle); img != "" {
		if err := e.Ban(ctx, e.Image(img)); err != nil {
			return err
		}
		t.topic.BlobKind = ""
		t.topic.BlobHandle = ""
	}
	t.topic.ReviewStatus = entity.StatusBanned
	return t.stores.Content.UpdateTopic(ctx, t.topic)
}

func (t *topicTarget) tag(ctx context.Context, status entity.ReviewStatus) error {
	return t.stores.Content.UpdateTopicStatus(ctx, t.handle, status)
}

type commentTarget struct {
	stores  *Stores
	handle  string
	comment *entity.Comment
}

func (t *commentTarget) String() string { return "comment " + t.handle }
func (t *commentTarget) label() string  { return string(entity.ContentComment) }

func (t *commentTarget) load(ctx context.Context) (bool, error) {
	comment, err := t.stores.Content.ReadComment(ctx, t.handle)
	if err != nil {
		return false, fmt.Errorf("read comment %s: %w", t.handle, err)
	}
	t.comment = comment
	return comment != nil, nil
}

func (t *commentTarget) status() entity.ReviewStatus { return t.comment.ReviewStatus.Normalize() }

func (t *commentTarget) payload() ([]string, string) {
	return []string{t.comment.Text}, attachedImage(t.comment.BlobKind, t.comment.BlobHandle)
}

func (t *commentTarget) ban(ctx context.Context, e *Enforcer) error {
	if img := attachedImage(t.comment.BlobKind, t.comment.BlobHandle); img != "" {
		if err := e.Ban(ctx, e.Image(img)); err != nil {
			return err
		}
		t.comment.BlobKind = ""
		t.comment.BlobHandle = ""
	}
	t.comment.ReviewStatus = entity.StatusBanned
	return t.stores.Content.UpdateComment(ctx, t.comment)
}

func (t *commentTarget) tag(ctx context.Context, status entity.ReviewStatus) error {
	return t.stores.Content.UpdateCommentStatus(ctx, t.handle, status)
}

type replyTarget struct {
	stores *Stores
	handle string
	reply  *entity.Reply
}

func (t *replyTarget) String() string { return "reply " + t.handle }
func (t *replyTarget) label() string  { return string(entity.ContentReply) }

func (t *replyTarget) load(ctx context.Context) (bool, error) {
	reply, err := t.stores.Content.ReadReply(ctx, t.handle)
	if err != nil {
		return false, fmt.Errorf("read reply %s: %w", t.handle, err)
	}
	t.reply = reply
	return reply != nil, nil
}

func (t *replyTarget) status() entity.ReviewStatus { return t.reply.ReviewStatus.Normalize() }

func (t *replyTarget) payload() ([]string, string) { return []string{t.reply.Text}, "" }

func (t *replyTarget) ban(ctx context.Context, _ *Enforcer) error {
	t.reply.ReviewStatus = entity.StatusBanned
	return t.stores.Content.UpdateReply(ctx, t.reply)
}

func (t *replyTarget) tag(ctx context.Context, status entity.ReviewStatus) error {
	t.reply.ReviewStatus = status
	return t.stores.Content.UpdateReply(ctx, t.reply)
}

type profileTarget struct {
	stores     *Stores
	appHandle  string
	userHandle string
	profile    *entity.UserProfile
}

func (t *profileTarget) String() string { return "user " + t.appHandle + "/" + t.userHandle }
func (t *profileTarget) label() string  { return "user" }

func (t *profileTarget) load(ctx context.Context) (bool, error) {
	profile, err := t.stores.Users.ReadUserProfile(ctx, t.appHandle, t.userHandle)
	if err != nil {
		return false, fmt.Errorf("read user %s/%s: %w", t.appHandle, t.userHandle, err)
	}
	t.profile = profile
	return profile != nil, nil
}

func (t *profileTarget) status() entity.ReviewStatus { return t.profile.ReviewStatus.Normalize() }

func (t *profileTarget) payload() ([]string, string) {
	return []string{t.profile.FirstName, t.profile.LastName, t.profile.Bio}, t.profile.PhotoHandle
}

func (t *profileTarget) ban(ctx context.Context, e *Enforcer) error {
	if t.profile.PhotoHandle != "" {
		if err := e.Ban(ctx, e.Image(t.profile.PhotoHandle)); err != nil {
			return err
		}
		t.profile.PhotoHandle = ""
	}
	t.profile.ReviewStatus = entity.StatusBanned
	return t.stores.Users.UpdateUserProfile(ctx, t.profile)
}

func (t *profileTarget) tag(ctx context.Context, status entity.ReviewStatus) error {
	return t.stores.Users.UpdateUserProfileStatus(ctx, t.appHandle, t.userHandle, status)
}

type imageTarget struct {
	stores *Stores
	handle string
	image  *entity.Image
}

func (t *imageTarget) String() string { return "image " + t.handle }
func (t *imageTarget) label() string  { return "image" }

func (t *imageTarget) load(ctx context.Context) (bool, error) {
	image, err := t.stores.Images.ReadImageMeta(ctx, t.handle)
	if err != nil {
		return false, fmt.Errorf("read image %s: %w", t.handle, err)
	}
	t.image = image
	return image != nil, nil
}

func (t *imageTarget) status() entity.ReviewStatus { return t.image.ReviewStatus.Normalize() }

func (t *imageTarget) payload() ([]string, string) { return nil, t.handle }

func (t *imageTarget) ban(ctx context.Context, _ *Enforcer) error {
	img := t.image
	if err := t.stores.Images.DeleteImage(ctx, img.AppHandle, img.OwnerHandle, img.Handle, img.Kind); err != nil {
		return fmt.Errorf("delete image %s: %w", img.Handle, err)
	}
	img.ReviewStatus = entity.StatusBanned
	return t.stores.Images.UpdateImageMeta(ctx, img)
}

func (t *imageTarget) tag(ctx context.Context, status entity.ReviewStatus) error {
	t.image.ReviewStatus = status
	return t.stores.Images.UpdateImageMeta(ctx, t.image)
}

// attachedImage returns the blob handle when the blob is an image.
func attachedImage(kind entity.BlobKind, handle string) string {
	if kind != entity.BlobKindImage {
		return ""
	}
	return handle
}
