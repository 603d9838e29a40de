// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CommentRecord model, the local baseline of remote comments embedded in
// notifications.
//
// The baseline is only written from two places: sync of confirmed remote
// state, and the sticky content overwrite performed by the update action.
// Optimistic toggles never touch these rows; they live in the in-memory
// overrides store until confirmed remotely and refetched.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-notification-actions/internal/domain"
)

// GetComment fetches the local record of a remote comment by its remote
// identity. Returns ErrNotFound when the comment has never been synced.
func GetComment(ctx context.Context, db *gorm.DB, siteID, commentID int64) (*domain.CommentRecord, error) {
	var rec domain.CommentRecord
	err := db.WithContext(ctx).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertComment creates or refreshes the baseline for a remote comment.
// Existing rows keep their UUID; only the mirrored fields are replaced.
func UpsertComment(ctx context.Context, db *gorm.DB, rec *domain.CommentRecord) (*domain.CommentRecord, error) {
	existing, err := GetComment(ctx, db, rec.SiteID, rec.CommentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		rec.ID = uuid.NewString()
		rec.CreatedAt = time.Now().UTC()
		if err := db.WithContext(ctx).Create(rec).Error; err != nil {
			return nil, err
		}
		return rec, nil
	}
	updates := map[string]any{
		"author_name": rec.AuthorName,
		"content":     rec.Content,
		"approved":    rec.Approved,
		"liked":       rec.Liked,
	}
	if err := db.WithContext(ctx).
		Model(&domain.CommentRecord{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetComment(ctx, db, rec.SiteID, rec.CommentID)
}

// UpdateCommentContent overwrites the locally displayed content of a comment.
// This is the direct (non-override) optimistic mutation used by the update
// action; it is deliberately not reverted when the remote call fails.
// Returns ErrNotFound when the comment has no local record.
func UpdateCommentContent(ctx context.Context, db *gorm.DB, siteID, commentID int64, content string) error {
	res := db.WithContext(ctx).
		Model(&domain.CommentRecord{}).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCommentApproved writes a confirmed approval state into the baseline.
func SetCommentApproved(ctx context.Context, db *gorm.DB, siteID, commentID int64, approved bool) error {
	res := db.WithContext(ctx).
		Model(&domain.CommentRecord{}).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		Update("approved", approved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCommentLiked writes a confirmed like state into the baseline.
func SetCommentLiked(ctx context.Context, db *gorm.DB, siteID, commentID int64, liked bool) error {
	res := db.WithContext(ctx).
		Model(&domain.CommentRecord{}).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		Update("liked", liked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment soft-deletes the local record of a remote comment.
// Callers use it after a confirmed remote spam/trash action removes the
// comment from the remote site.
func DeleteComment(ctx context.Context, db *gorm.DB, siteID, commentID int64) error {
	res := db.WithContext(ctx).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		Delete(&domain.CommentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
