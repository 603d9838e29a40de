// Notification HTTP handlers.
//
// This file exposes REST endpoints for the notification stream:
//   - POST /notifications           (record a remote event, sync feed)
//   - GET  /notifications           (list, paginated, unread filter)
//   - GET  /notifications/{id}      (single, served through the cache)
//   - PUT  /notifications/{id}/read (flip the read flag, local-only)
//   - POST /notifications/seen      (bulk mark-as-read up to a cutoff)
//
// Handlers are transport-thin: they validate input, call the notification
// service, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-notification-actions/internal/domain"
	"github.com/tbourn/go-notification-actions/internal/services"
	"github.com/tbourn/go-notification-actions/internal/sysutil"
	"github.com/tbourn/go-notification-actions/internal/utils"
)

// NotificationService defines the notification stream operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type NotificationService interface {
	// Ingest records a notification event and its embedded comment snapshot.
	Ingest(ctx context.Context, in services.IngestInput) (*domain.Notification, error)
	// ListPage returns a page of the user's notifications and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]domain.Notification, int64, error)
	// Get returns a single notification, reading through the cache.
	Get(ctx context.Context, userID, id string) (*domain.Notification, error)
	// SetRead flips the read flag and invalidates the cache entry.
	SetRead(ctx context.Context, userID, id string, read bool) error
	// MarkSeen marks notifications created at or before the cutoff as read.
	MarkSeen(ctx context.Context, userID string, before time.Time) (int64, error)
}

//
// DTOs
//

// IngestNotificationRequest is the JSON payload for recording a remote
// notification event. Comment-carrying events include a snapshot of the
// embedded comment.
type IngestNotificationRequest struct {
	UserID     string `json:"user_id"     binding:"required" example:"user123"`
	SiteID     int64  `json:"site_id"     binding:"required" example:"42"`
	CommentID  *int64 `json:"comment_id,omitempty" example:"1001"`
	Type       string `json:"type"        binding:"required" example:"comment" enums:"comment,like,follow"`
	AuthorName string `json:"author_name,omitempty" example:"Jamie"`
	Content    string `json:"content,omitempty"     example:"Great post!"`
	Approved   bool   `json:"approved,omitempty"`
	Liked      bool   `json:"liked,omitempty"`
}

// SetReadRequest is the JSON payload for flipping the read flag.
type SetReadRequest struct {
	Read *bool `json:"read" binding:"required" example:"true"`
}

// MarkSeenRequest is the JSON payload for the bulk seen operation. Before is
// optional; when omitted, the current time is used.
type MarkSeenRequest struct {
	Before time.Time `json:"before,omitempty" format:"date-time"`
}

// MarkSeenResponse reports the number of notifications marked as read.
type MarkSeenResponse struct {
	Marked int64 `json:"marked" example:"12"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// IngestNotification godoc
// @ID          ingestNotification
// @Summary     Record a notification event
// @Description Records an incoming notification event from the remote platform and refreshes the embedded comment's local baseline. Intended for the platform sync feed, not end clients.
// @Tags        Notifications
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.IngestNotificationRequest  true  "Notification event"
//
// @Success     201  {object}  domain.Notification
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [post]
func (h *Handlers) IngestNotification(c *gin.Context) {
	var req IngestNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	n, err := h.notifSvc.Ingest(c.Request.Context(), services.IngestInput{
		UserID:     req.UserID,
		SiteID:     req.SiteID,
		CommentID:  req.CommentID,
		Type:       req.Type,
		AuthorName: req.AuthorName,
		Content:    req.Content,
		Approved:   req.Approved,
		Liked:      req.Liked,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidNotificationType),
			errors.Is(err, services.ErrMissingSiteID),
			errors.Is(err, services.ErrMissingCommentID):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, n)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Returns a page of the user's notification stream, newest first. Set unread=true to restrict to unread items.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
// @Param       unread     query   bool    false "Only unread items"
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid := userID(c)
	page, pageSize := clampPagination(c)
	unreadOnly := sysutil.IsTruthy(c.Query("unread"))

	items, total, err := h.notifSvc.ListPage(c.Request.Context(), uid, page, pageSize, unreadOnly)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetNotification godoc
// @ID          getNotification
// @Summary     Get a notification
// @Description Returns a single notification owned by the current user, served through the cache when warm.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Notification ID (UUID)" format(uuid)
//
// @Success     200  {object}  domain.Notification
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /notifications/{id} [get]
func (h *Handlers) GetNotification(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a UUID")
		return
	}

	n, err := h.notifSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, n)
}

// SetNotificationRead godoc
// @ID          setNotificationRead
// @Summary     Mark a notification read or unread
// @Description Flips the read flag. Local-only: the read state never round-trips to the remote API.
// @Tags        Notifications
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                    false "User ID (demo header)"  example(user123)
// @Param       id         path    string                    true  "Notification ID (UUID)" format(uuid)
// @Param       body       body    handlers.SetReadRequest   true  "Read flag"
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /notifications/{id}/read [put]
func (h *Handlers) SetNotificationRead(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a UUID")
		return
	}

	var req SetReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Read == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "read flag required")
		return
	}

	if err := h.notifSvc.SetRead(c.Request.Context(), userID(c), id, *req.Read); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// MarkNotificationsSeen godoc
// @ID          markNotificationsSeen
// @Summary     Mark the stream as seen
// @Description Marks every unread notification created at or before the cutoff as read. Omitting the cutoff uses the current time.
// @Tags        Notifications
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                     false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.MarkSeenRequest   false "Cutoff"
//
// @Success     200  {object}  handlers.MarkSeenResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/seen [post]
func (h *Handlers) MarkNotificationsSeen(c *gin.Context) {
	var req MarkSeenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	n, err := h.notifSvc.MarkSeen(c.Request.Context(), userID(c), req.Before)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkSeenResponse{Marked: n})
}

// ensure the concrete service satisfies the handler contract.
var _ NotificationService = (*services.NotificationService)(nil)
