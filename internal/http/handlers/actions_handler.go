// Action HTTP handlers.
//
// This file exposes the REST endpoints that trigger remote actions:
//   - POST   /sites/{site}/follows                       (follow)
//   - DELETE /sites/{site}/follows                       (unfollow)
//   - POST   /sites/{site}/comments/{comment}/replies    (reply)
//   - PUT    /sites/{site}/comments/{comment}            (update content)
//   - POST   /sites/{site}/comments/{comment}/likes      (like)
//   - DELETE /sites/{site}/comments/{comment}/likes      (unlike)
//   - POST   /sites/{site}/comments/{comment}/approval   (approve)
//   - DELETE /sites/{site}/comments/{comment}/approval   (unapprove)
//   - POST   /sites/{site}/comments/{comment}/spam       (flag as spam)
//   - DELETE /sites/{site}/comments/{comment}            (trash)
//
// Handlers are transport-thin: they validate input, hand the action to the
// orchestrator, and wait for the single boolean outcome. A confirmed action
// returns 200 with the applied state; a failed one returns 502 after the
// optimistic state has been rolled back. Requests carrying a previously
// completed Idempotency-Key are served as replays without re-issuing the
// remote action.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-notification-actions/internal/http/middleware"
	"github.com/tbourn/go-notification-actions/internal/repo"
	"github.com/tbourn/go-notification-actions/internal/services"
)

//
// Service contracts (context-aware)
//

// ActionService defines the action orchestration operations consumed by HTTP
// handlers. Every method applies its optimistic local effect synchronously
// and delivers exactly one boolean outcome to done once the remote call
// resolves. Implementations must be safe for concurrent use.
type ActionService interface {
	FollowSite(ctx context.Context, t services.Target, done func(bool))
	UnfollowSite(ctx context.Context, t services.Target, done func(bool))
	ReplyToComment(ctx context.Context, t services.Target, content string, done func(bool))
	UpdateComment(ctx context.Context, t services.Target, content string, done func(bool))
	LikeComment(ctx context.Context, t services.Target, done func(bool))
	UnlikeComment(ctx context.Context, t services.Target, done func(bool))
	ApproveComment(ctx context.Context, t services.Target, done func(bool))
	UnapproveComment(ctx context.Context, t services.Target, done func(bool))
	SpamComment(ctx context.Context, t services.Target, done func(bool))
	DeleteComment(ctx context.Context, t services.Target, done func(bool))
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for actions and notifications. It
// depends on abstract service interfaces to keep transport concerns separate
// from orchestration, plus a DB handle for idempotency records.
type Handlers struct {
	actionSvc ActionService
	notifSvc  NotificationService

	db             *gorm.DB
	idempotencyTTL time.Duration

	// actionWait bounds how long a handler waits for the orchestrator's
	// outcome. The orchestrator's own call timeout fires first in practice.
	actionWait time.Duration
}

// New constructs a Handlers instance bound to the given services. db and ttl
// configure idempotency recording; a nil db disables it.
func New(actionSvc ActionService, notifSvc NotificationService, db *gorm.DB, idempotencyTTL time.Duration) *Handlers {
	return &Handlers{
		actionSvc:      actionSvc,
		notifSvc:       notifSvc,
		db:             db,
		idempotencyTTL: idempotencyTTL,
		actionWait:     30 * time.Second,
	}
}

// userID extracts the authenticated user id from the Gin context (set by
// upstream middleware). If absent, it falls back to the "X-User-ID" header
// (tests use it), and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// ContentRequest is the JSON payload for reply and update actions.
type ContentRequest struct {
	// Content is the reply or replacement body (non-blank).
	Content string `json:"content" binding:"required" example:"Thanks for the write-up!"`
	// NotificationID optionally names the owning notification so cache
	// invalidation can skip the lookup.
	NotificationID string `json:"notification_id,omitempty" format:"uuid"`
}

// ActionResponse reports a confirmed action.
type ActionResponse struct {
	OK      bool   `json:"ok" example:"true"`
	Action  string `json:"action" example:"like"`
	SiteID  int64  `json:"site_id" example:"7"`
	Comment int64  `json:"comment_id,omitempty" example:"42"`
	// Replayed is true when the response was served from an idempotency
	// record without re-issuing the remote action.
	Replayed bool `json:"replayed,omitempty"`
}

//
// Helpers
//

// targetFrom parses the site (and optional comment) path parameters. The
// second return value is false when a parameter is missing or not a positive
// integer, in which case the 400 response has already been written.
func targetFrom(c *gin.Context, needComment bool) (services.Target, bool) {
	site, err := strconv.ParseInt(c.Param("site"), 10, 64)
	if err != nil || site <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "site must be a positive integer")
		return services.Target{}, false
	}
	t := services.Target{SiteID: site, NotificationID: c.Query("notification_id")}
	if !needComment {
		return t, true
	}
	comment, err := strconv.ParseInt(c.Param("comment"), 10, 64)
	if err != nil || comment <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comment must be a positive integer")
		return services.Target{}, false
	}
	t.CommentID = comment
	return t, true
}

// runAction serves one action request end to end: replay short-circuit,
// invocation, outcome wait, idempotency recording, and metrics.
func (h *Handlers) runAction(c *gin.Context, action string, t services.Target, invoke func(done func(bool))) {
	if middleware.IsReplay(c) {
		ok(c, http.StatusOK, ActionResponse{
			OK: true, Action: action, SiteID: t.SiteID, Comment: t.CommentID, Replayed: true,
		})
		return
	}

	outcome := make(chan bool, 1)
	invoke(func(v bool) { outcome <- v })

	select {
	case confirmed := <-outcome:
		if !confirmed {
			middleware.RecordActionOutcome(action, middleware.OutcomeRolledBack)
			fail(c, http.StatusBadGateway, ErrCodeActionFailed, "remote site rejected the action")
			return
		}
		middleware.RecordActionOutcome(action, middleware.OutcomeConfirmed)
		h.recordIdempotency(c, http.StatusOK)
		ok(c, http.StatusOK, ActionResponse{
			OK: true, Action: action, SiteID: t.SiteID, Comment: t.CommentID,
		})
	case <-time.After(h.actionWait):
		// The orchestrator still owns the action and may yet confirm it;
		// only the response times out, so neither confirmed nor rolled_back
		// would be truthful here.
		middleware.RecordActionOutcome(action, middleware.OutcomeTimeout)
		fail(c, http.StatusGatewayTimeout, ErrCodeActionTimeout, "action did not resolve in time")
	}
}

// recordIdempotency persists the completed request for the presented key, if
// any. Best-effort: a concurrent duplicate or storage error never fails the
// already confirmed action.
func (h *Handlers) recordIdempotency(c *gin.Context, status int) {
	key, present := middleware.GetIdempotencyKey(c)
	if !present || h.db == nil {
		return
	}
	target := middleware.IdempotencyTarget(c)
	_, err := repo.CreateIdempotency(c.Request.Context(), h.db, userID(c), target, key, status, h.idempotencyTTL)
	if err != nil && err != repo.ErrDuplicate {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
	}
}

// bindContent parses the reply/update body and pre-validates it so malformed
// requests fail with 400 before any remote work starts.
func (h *Handlers) bindContent(c *gin.Context, t *services.Target) (string, bool) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: content required")
		return "", false
	}
	if req.NotificationID != "" {
		t.NotificationID = req.NotificationID
	}
	return req.Content, true
}

//
// Handlers
//

// FollowSite godoc
// @ID          followSite
// @Summary     Follow a site
// @Description Optimistically follows the site and confirms with the remote API. On failure the follow state is rolled back.
// @Tags        Actions
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Safe-retry key"
// @Param       site             path    int     true  "Site ID"  example(7)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502  {object}  handlers.ErrorResponse  "Remote rejected"
// @Router      /sites/{site}/follows [post]
func (h *Handlers) FollowSite(c *gin.Context) {
	t, valid := targetFrom(c, false)
	if !valid {
		return
	}
	h.runAction(c, "follow", t, func(done func(bool)) {
		h.actionSvc.FollowSite(c.Request.Context(), t, done)
	})
}

// UnfollowSite godoc
// @ID          unfollowSite
// @Summary     Unfollow a site
// @Description Optimistically removes the follow and confirms with the remote API.
// @Tags        Actions
// @Produce     json
//
// @Param       site  path  int  true  "Site ID"  example(7)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/follows [delete]
func (h *Handlers) UnfollowSite(c *gin.Context) {
	t, valid := targetFrom(c, false)
	if !valid {
		return
	}
	h.runAction(c, "unfollow", t, func(done func(bool)) {
		h.actionSvc.UnfollowSite(c.Request.Context(), t, done)
	})
}

// ReplyToComment godoc
// @ID          replyToComment
// @Summary     Reply to a comment
// @Description Posts a reply to the remote comment. No optimistic mutation; on success the owning notification's cache entry is invalidated.
// @Tags        Actions
// @Accept      json
// @Produce     json
//
// @Param       site     path  int                       true  "Site ID"     example(7)
// @Param       comment  path  int                       true  "Comment ID"  example(42)
// @Param       body     body  handlers.ContentRequest   true  "Reply content"
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/replies [post]
func (h *Handlers) ReplyToComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	content, valid := h.bindContent(c, &t)
	if !valid {
		return
	}
	h.runAction(c, "reply", t, func(done func(bool)) {
		h.actionSvc.ReplyToComment(c.Request.Context(), t, content, done)
	})
}

// UpdateComment godoc
// @ID          updateComment
// @Summary     Edit a comment
// @Description Replaces the comment content. The locally displayed content is overwritten immediately and kept even when the remote update fails; a 502 tells the client to refetch for remote truth.
// @Tags        Actions
// @Accept      json
// @Produce     json
//
// @Param       site     path  int                      true  "Site ID"     example(7)
// @Param       comment  path  int                      true  "Comment ID"  example(42)
// @Param       body     body  handlers.ContentRequest  true  "Replacement content"
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment} [put]
func (h *Handlers) UpdateComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	content, valid := h.bindContent(c, &t)
	if !valid {
		return
	}
	h.runAction(c, "update", t, func(done func(bool)) {
		h.actionSvc.UpdateComment(c.Request.Context(), t, content, done)
	})
}

// LikeComment godoc
// @ID          likeComment
// @Summary     Like a comment
// @Description Optimistically likes the comment and confirms remotely. Liking an unapproved comment also triggers an approve action with its own independent outcome.
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/likes [post]
func (h *Handlers) LikeComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "like", t, func(done func(bool)) {
		h.actionSvc.LikeComment(c.Request.Context(), t, done)
	})
}

// UnlikeComment godoc
// @ID          unlikeComment
// @Summary     Remove a like
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/likes [delete]
func (h *Handlers) UnlikeComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "unlike", t, func(done func(bool)) {
		h.actionSvc.UnlikeComment(c.Request.Context(), t, done)
	})
}

// ApproveComment godoc
// @ID          approveComment
// @Summary     Approve a comment
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/approval [post]
func (h *Handlers) ApproveComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "approve", t, func(done func(bool)) {
		h.actionSvc.ApproveComment(c.Request.Context(), t, done)
	})
}

// UnapproveComment godoc
// @ID          unapproveComment
// @Summary     Unapprove a comment
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/approval [delete]
func (h *Handlers) UnapproveComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "unapprove", t, func(done func(bool)) {
		h.actionSvc.UnapproveComment(c.Request.Context(), t, done)
	})
}

// SpamComment godoc
// @ID          spamComment
// @Summary     Flag a comment as spam
// @Description Reports the comment as spam to the remote site. No optimistic mutation and no cache invalidation.
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment}/spam [post]
func (h *Handlers) SpamComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "spam", t, func(done func(bool)) {
		h.actionSvc.SpamComment(c.Request.Context(), t, done)
	})
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Trash a comment
// @Description Moves the remote comment to trash. No optimistic mutation and no cache invalidation.
// @Tags        Actions
// @Produce     json
//
// @Param       site     path  int  true  "Site ID"     example(7)
// @Param       comment  path  int  true  "Comment ID"  example(42)
//
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /sites/{site}/comments/{comment} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	t, valid := targetFrom(c, true)
	if !valid {
		return
	}
	h.runAction(c, "delete", t, func(done func(bool)) {
		h.actionSvc.DeleteComment(c.Request.Context(), t, done)
	})
}

// ensure the concrete orchestrator satisfies the handler contract.
var _ ActionService = (*services.ActionsService)(nil)
