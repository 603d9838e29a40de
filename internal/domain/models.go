// Package domain defines the persistence models for notifications and the
// locally mirrored comments they embed. These types are mapped with GORM and
// form the local object store that optimistic actions operate against.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Notification types stored in Notification.Type.
const (
	TypeComment = "comment"
	TypeLike    = "like"
	TypeFollow  = "follow"
)

// Notification represents a single item in a user's notification stream.
// Comment-scoped notifications carry the site/comment pair of the embedded
// content block; follow/like notifications may reference only a site.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the recipient; indexed for stream retrieval.
//   - SiteID: remote site the notification belongs to.
//   - CommentID: remote comment embedded in the notification, when any.
//   - Type: "comment", "like", or "follow" (enforced by DB constraint).
//   - Read: whether the user has read the notification.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Notification struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_notifications"`
	SiteID    int64          `json:"site_id"    gorm:"not null;index:idx_site_comment,priority:1"`
	CommentID *int64         `json:"comment_id,omitempty" gorm:"index:idx_site_comment,priority:2"`
	Type      string         `json:"type"       gorm:"type:varchar(16);not null;check:type IN ('comment','like','follow')"`
	Read      bool           `json:"read"       gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_user_notifications,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// CommentRecord is the local baseline of a remote comment embedded in one or
// more notifications. The approved/liked flags mirror the last confirmed
// remote state; in-flight optimistic values live in the overrides store, not
// here. Content is overwritten directly on edit (sticky, not reverted).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SiteID / CommentID: remote identity, unique together.
//   - AuthorName: display name of the comment author.
//   - Content: comment body as last synced or locally edited.
//   - Approved / Liked: baseline moderation and like state.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type CommentRecord struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	SiteID     int64          `json:"site_id"     gorm:"not null;uniqueIndex:ux_site_comment,priority:1"`
	CommentID  int64          `json:"comment_id"  gorm:"not null;uniqueIndex:ux_site_comment,priority:2"`
	AuthorName string         `json:"author_name" gorm:"type:varchar(255)"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	Approved   bool           `json:"approved"    gorm:"not null;default:false"`
	Liked      bool           `json:"liked"       gorm:"not null;default:false"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for CommentRecord.
func (CommentRecord) TableName() string { return "comments" }
