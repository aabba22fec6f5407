// Package store provides the Redis-backed entity stores moderation reads
// from and enforces verdicts on. Each entity is a hash:
//
//	topic:<handle>
//	comment:<handle>
//	reply:<handle>
//	profile:<app>:<user>
//	image:<handle>
//	appconfig:<app>
//
// Content is created by the services that own it; updates from here only
// apply to entities that still exist.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/moderation/internal/entity"
)

const (
	TopicPrefix     = "topic:"
	CommentPrefix   = "comment:"
	ReplyPrefix     = "reply:"
	ProfilePrefix   = "profile:"
	ImagePrefix     = "image:"
	AppConfigPrefix = "appconfig:"
)

// hsetIfExists writes the field/value pairs in ARGV to KEYS[1] only if the
// hash is still there, so a concurrent delete is not undone.
var hsetIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

func update(ctx context.Context, client *redis.Client, key string, fields map[string]any) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return hsetIfExists.Run(ctx, client, []string{key}, args...).Err()
}

func updateStatus(ctx context.Context, client *redis.Client, key string, status entity.ReviewStatus) error {
	return update(ctx, client, key, map[string]any{"review_status": string(status)})
}

type topicRow struct {
	Handle       string `redis:"handle"`
	AppHandle    string `redis:"app_handle"`
	UserHandle   string `redis:"user_handle"`
	Title        string `redis:"title"`
	Text         string `redis:"text"`
	BlobKind     string `redis:"blob_kind"`
	BlobHandle   string `redis:"blob_handle"`
	ReviewStatus string `redis:"review_status"`
}

type commentRow struct {
	Handle       string `redis:"handle"`
	AppHandle    string `redis:"app_handle"`
	UserHandle   string `redis:"user_handle"`
	TopicHandle  string `redis:"topic_handle"`
	Text         string `redis:"text"`
	BlobKind     string `redis:"blob_kind"`
	BlobHandle   string `redis:"blob_handle"`
	ReviewStatus string `redis:"review_status"`
}

type replyRow struct {
	Handle        string `redis:"handle"`
	AppHandle     string `redis:"app_handle"`
	UserHandle    string `redis:"user_handle"`
	CommentHandle string `redis:"comment_handle"`
	Text          string `redis:"text"`
	ReviewStatus  string `redis:"review_status"`
}

// Content stores topics, comments and replies.
type Content struct {
	client *redis.Client
}

// NewContent creates a content store using the provided Redis client.
func NewContent(client *redis.Client) *Content {
	return &Content{client: client}
}

// ReadTopic returns the topic, or nil if it does not exist.
func (s *Content) ReadTopic(ctx context.Context, handle string) (*entity.Topic, error) {
	var row topicRow
	if err := s.client.HGetAll(ctx, TopicPrefix+handle).Scan(&row); err != nil {
		return nil, fmt.Errorf("store: read topic %s: %w", handle, err)
	}
	if row.Handle == "" {
		return nil, nil
	}
	return &entity.Topic{
		Handle:       row.Handle,
		AppHandle:    row.AppHandle,
		UserHandle:   row.UserHandle,
		Title:        row.Title,
		Text:         row.Text,
		BlobKind:     entity.BlobKind(row.BlobKind),
		BlobHandle:   row.BlobHandle,
		ReviewStatus: entity.ReviewStatus(row.ReviewStatus),
	}, nil
}

// UpdateTopic writes the moderation-owned fields of a topic.
func (s *Content) UpdateTopic(ctx context.Context, t *entity.Topic) error {
	err := update(ctx, s.client, TopicPrefix+t.Handle, map[string]any{
		"blob_kind":     string(t.BlobKind),
		"blob_handle":   t.BlobHandle,
		"review_status": string(t.ReviewStatus),
	})
	if err != nil {
		return fmt.Errorf("store: update topic %s: %w", t.Handle, err)
	}
	return nil
}

// UpdateTopicStatus writes only the review status of a topic.
func (s *Content) UpdateTopicStatus(ctx context.Context, handle string, status entity.ReviewStatus) error {
	if err := updateStatus(ctx, s.client, TopicPrefix+handle, status); err != nil {
		return fmt.Errorf("store: update topic status %s: %w", handle, err)
	}
	return nil
}

// ReadComment returns the comment, or nil if it does not exist.
func (s *Content) ReadComment(ctx context.Context, handle string) (*entity.Comment, error) {
	var row commentRow
	if err := s.client.HGetAll(ctx, CommentPrefix+handle).Scan(&row); err != nil {
		return nil, fmt.Errorf("store: read comment %s: %w", handle, err)
	}
	if row.Handle == "" {
		return nil, nil
	}
	return &entity.Comment{
		Handle:       row.Handle,
		AppHandle:    row.AppHandle,
		UserHandle:   row.UserHandle,
		TopicHandle:  row.TopicHandle,
		Text:         row.Text,
		BlobKind:     entity.BlobKind(row.BlobKind),
		BlobHandle:   row.BlobHandle,
		ReviewStatus: entity.ReviewStatus(row.ReviewStatus),
	}, nil
}

// UpdateComment writes the moderation-owned fields of a comment.
func (s *Content) UpdateComment(ctx context.Context, c *entity.Comment) error {
	err := update(ctx, s.client, CommentPrefix+c.Handle, map[string]any{
		"blob_kind":     string(c.BlobKind),
		"blob_handle":   c.BlobHandle,
		"review_status": string(c.ReviewStatus),
	})
	if err != nil {
		return fmt.Errorf("store: update comment %s: %w", c.Handle, err)
	}
	return nil
}

// UpdateCommentStatus writes only the review status of a comment.
func (s *Content) UpdateCommentStatus(ctx context.Context, handle string, status entity.ReviewStatus) error {
	if err := updateStatus(ctx, s.client, CommentPrefix+handle, status); err != nil {
		return fmt.Errorf("store: update comment status %s: %w", handle, err)
	}
	return nil
}

// ReadReply returns the reply, or nil if it does not exist.
func (s *Content) ReadReply(ctx context.Context, handle string) (*entity.Reply, error) {
	var row replyRow
	if err := s.client.HGetAll(ctx, ReplyPrefix+handle).Scan(&row); err != nil {
		return nil, fmt.Errorf("store: read reply %s: %w", handle, err)
	}
	if row.Handle == "" {
		return nil, nil
	}
	return &entity.Reply{
		Handle:        row.Handle,
		AppHandle:     row.AppHandle,
		UserHandle:    row.UserHandle,
		CommentHandle: row.CommentHandle,
		Text:          row.Text,
		ReviewStatus:  entity.ReviewStatus(row.ReviewStatus),
	}, nil
}

// UpdateReply writes the review status of a reply.
func (s *Content) UpdateReply(ctx context.Context, r *entity.Reply) error {
	err := update(ctx, s.client, ReplyPrefix+r.Handle, map[string]any{
		"review_status": string(r.ReviewStatus),
	})
	if err != nil {
		return fmt.Errorf("store: update reply %s: %w", r.Handle, err)
	}
	return nil
}
