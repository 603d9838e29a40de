// NotificationService.
//
// This file implements NotificationService, which owns ingestion of remote
// notification events, the notification stream read path, and local-only
// read-state mutations. Reads go through the notification cache
// (read-through with TTL); mutations update the local store and invalidate
// the affected cache entry.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-notification-actions/internal/cache"
	"github.com/tbourn/go-notification-actions/internal/domain"
	"github.com/tbourn/go-notification-actions/internal/repo"
)

// NotificationService serves the notification stream from the local store
// with a cache in front of single-notification reads.
type NotificationService struct {
	DB          *gorm.DB
	Cache       cache.NotificationCache
	Invalidator cache.Invalidator
	CacheTTL    time.Duration
}

// IngestInput is one incoming notification event from the remote blogging
// platform. Comment-carrying events include a snapshot of the embedded
// comment, which becomes (or refreshes) the local baseline the optimistic
// actions operate against.
type IngestInput struct {
	UserID     string
	SiteID     int64
	CommentID  *int64
	Type       string
	AuthorName string
	Content    string
	Approved   bool
	Liked      bool
}

// Ingest records a notification event in the local store. The embedded
// comment snapshot, when present, is upserted first so the notification never
// references a comment the baseline does not know.
func (s *NotificationService) Ingest(ctx context.Context, in IngestInput) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.Int64("site.id", in.SiteID),
			attribute.String("notification.type", in.Type),
		),
	)
	defer span.End()

	switch in.Type {
	case domain.TypeComment, domain.TypeLike, domain.TypeFollow:
	default:
		return nil, ErrInvalidNotificationType
	}
	if in.SiteID == 0 {
		return nil, ErrMissingSiteID
	}
	if in.Type == domain.TypeComment && (in.CommentID == nil || *in.CommentID == 0) {
		return nil, ErrMissingCommentID
	}

	if in.CommentID != nil && *in.CommentID != 0 {
		if _, err := repo.UpsertComment(ctx, s.DB, &domain.CommentRecord{
			SiteID:     in.SiteID,
			CommentID:  *in.CommentID,
			AuthorName: in.AuthorName,
			Content:    in.Content,
			Approved:   in.Approved,
			Liked:      in.Liked,
		}); err != nil {
			return nil, err
		}
	}
	return repo.CreateNotification(ctx, s.DB, in.UserID, in.SiteID, in.CommentID, in.Type)
}

// ListPage returns a page of the user's notifications, newest first, with
// the total count. unreadOnly restricts the stream to unread items.
func (s *NotificationService) ListPage(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]domain.Notification, int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountNotifications(ctx, s.DB, userID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}

	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, unreadOnly, offset, pageSize)
	return items, total, err
}

// Get returns a single notification, reading through the cache. Ownership is
// enforced after a cache hit as well, so one user's cached entry is never
// served to another.
func (s *NotificationService) Get(ctx context.Context, userID, id string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	if s.Cache != nil {
		if payload, err := s.Cache.Get(ctx, id); err == nil {
			var n domain.Notification
			if uerr := json.Unmarshal(payload, &n); uerr == nil && n.UserID == userID {
				return &n, nil
			}
			// Corrupt or mismatched entry: fall through to the store.
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("notification_id", id).Msg("cache read failed")
		}
	}

	n, err := repo.GetNotification(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if s.Cache != nil {
		if payload, merr := json.Marshal(n); merr == nil {
			if serr := s.Cache.Set(ctx, n.ID, payload, s.CacheTTL); serr != nil {
				log.Warn().Err(serr).Str("notification_id", n.ID).Msg("cache write failed")
			}
		}
	}
	return n, nil
}

// SetRead flips the read flag on a notification and invalidates its cache
// entry. Local-only: the read state never round-trips to the remote API.
func (s *NotificationService) SetRead(ctx context.Context, userID, id string, read bool) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "SetRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
			attribute.Bool("read", read),
		),
	)
	defer span.End()

	if err := repo.SetNotificationRead(ctx, s.DB, id, userID, read); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	if s.Invalidator != nil {
		if err := s.Invalidator.InvalidateNotification(ctx, id); err != nil {
			log.Warn().Err(err).Str("notification_id", id).Msg("cache invalidation failed")
		}
	}
	return nil
}

// MarkSeen marks every unread notification created at or before the given
// instant as read and returns the number affected. Cached entries for the
// affected rows are left to expire by TTL; the bulk path does not enumerate
// them.
func (s *NotificationService) MarkSeen(ctx context.Context, userID string, before time.Time) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkSeen",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if before.IsZero() {
		before = time.Now().UTC()
	}
	return repo.MarkNotificationsSeen(ctx, s.DB, userID, before)
}
