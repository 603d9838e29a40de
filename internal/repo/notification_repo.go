// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a notification is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-notification-actions/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateNotification inserts a new Notification row for userID. The ID is a
// randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateNotification(ctx context.Context, db *gorm.DB, userID string, siteID int64, commentID *int64, typ string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		SiteID:    siteID,
		CommentID: commentID,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// GetNotification fetches a single notification by ID, enforcing ownership.
// Returns ErrNotFound when missing or owned by a different user.
func GetNotification(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindNotificationByComment resolves the notification that embeds the given
// remote comment, regardless of owner. Used to locate the cache entry that
// must be invalidated after a confirmed remote action. Returns ErrNotFound
// when no notification references the comment.
func FindNotificationByComment(ctx context.Context, db *gorm.DB, siteID, commentID int64) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("site_id = ? AND comment_id = ?", siteID, commentID).
		Order("created_at DESC").
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindNotificationBySite resolves the most recent site-scoped notification
// (follow/like) for siteID. Returns ErrNotFound when none exists.
func FindNotificationBySite(ctx context.Context, db *gorm.DB, siteID int64) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("site_id = ? AND comment_id IS NULL", siteID).
		Order("created_at DESC").
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CountNotifications returns the total number of notifications for userID,
// optionally restricted to unread ones.
func CountNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// ListNotificationsPage returns a page of notifications for userID, newest
// first, optionally restricted to unread ones.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, offset, limit int) ([]domain.Notification, error) {
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var items []domain.Notification
	err := q.Find(&items).Error
	return items, err
}

// SetNotificationRead flips the read flag on a notification, enforcing
// ownership. Returns ErrNotFound when the row does not exist.
func SetNotificationRead(ctx context.Context, db *gorm.DB, id, userID string, read bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", read)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationsSeen marks all of userID's notifications created at or
// before the given instant as read, returning the number of rows updated.
func MarkNotificationsSeen(ctx context.Context, db *gorm.DB, userID string, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ? AND created_at <= ?", userID, false, before).
		Update("read", true)
	return res.RowsAffected, res.Error
}
