// ActionsService.
//
// This file implements ActionsService, the orchestrator for user-triggered
// actions against remote content (follow/unfollow a site; reply to, update,
// like, unlike, approve, unapprove, spam, or delete a comment).
//
// Contract per action:
//   - Preconditions are checked synchronously; a missing identifier delivers
//     an immediate false outcome with no remote call and no local mutation.
//   - Toggleable actions apply an optimistic override before the remote call
//     so readers of the entity see the intended end state immediately.
//   - The remote call runs asynchronously. Success confirms the override,
//     signals cache invalidation for the owning notification (where
//     applicable), and delivers true. Failure reverts the override and
//     delivers false. Every invocation delivers exactly one outcome.
//   - Overrides are sequence-guarded: a late resolution for a superseded
//     intent neither reverts nor confirms (rapid toggles keep the latest
//     intent on screen).
//
// Failures are terminal for the single attempt; no retry is performed here.
//
// Observability: public methods are OpenTelemetry-instrumented; success and
// failure paths emit structured logs.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-notification-actions/internal/cache"
	"github.com/tbourn/go-notification-actions/internal/gateway"
	"github.com/tbourn/go-notification-actions/internal/overrides"
	"github.com/tbourn/go-notification-actions/internal/repo"
)

// Override action names used as keys in the overrides store.
const (
	ActionFollow  = "follow"
	ActionLike    = "like"
	ActionApprove = "approve"
)

// Target references the entity an action applies to. SiteID is always
// required; CommentID is required for comment-scoped actions and zero for
// site-scoped ones. NotificationID optionally names the owning notification
// when the caller already knows it; otherwise the service resolves it from
// the local store for cache invalidation.
type Target struct {
	SiteID         int64
	CommentID      int64
	NotificationID string
}

// siteEntity is the override-store identity for the site-scoped state.
func (t Target) siteEntity() string {
	return "site:" + strconv.FormatInt(t.SiteID, 10)
}

// commentEntity is the override-store identity for the comment-scoped state.
func (t Target) commentEntity() string {
	return fmt.Sprintf("comment:%d/%d", t.SiteID, t.CommentID)
}

// ActionsService coordinates optimistic local mutations with remote
// confirmation. All collaborators are injected; the service holds no
// ambient state beyond them.
type ActionsService struct {
	DB          *gorm.DB
	Gateway     gateway.RemoteGateway
	Overrides   *overrides.Store
	Invalidator cache.Invalidator

	// CallTimeout bounds each remote call once it is issued. Issued calls
	// run to completion regardless of what happens to the caller.
	CallTimeout time.Duration

	// MaxContentRunes caps reply/update content length; <= 0 disables.
	MaxContentRunes int
}

// finish invokes the completion callback when one was provided. Every action
// path must call it exactly once.
func finish(done func(bool), ok bool) {
	if done != nil {
		done(ok)
	}
}

func (s *ActionsService) callTimeout() time.Duration {
	if s.CallTimeout > 0 {
		return s.CallTimeout
	}
	return 15 * time.Second
}

// FollowSite optimistically follows the site and confirms remotely.
func (s *ActionsService) FollowSite(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "FollowSite", t)
	defer span.End()

	if t.SiteID == 0 {
		s.precondition("follow", t, ErrMissingSiteID, done)
		return
	}
	s.toggle(ctx, t, t.siteEntity(), ActionFollow, true, done, func(cctx context.Context) error {
		return s.Gateway.FollowSite(cctx, t.SiteID)
	})
}

// UnfollowSite optimistically unfollows the site and confirms remotely.
func (s *ActionsService) UnfollowSite(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "UnfollowSite", t)
	defer span.End()

	if t.SiteID == 0 {
		s.precondition("unfollow", t, ErrMissingSiteID, done)
		return
	}
	s.toggle(ctx, t, t.siteEntity(), ActionFollow, false, done, func(cctx context.Context) error {
		return s.Gateway.UnfollowSite(cctx, t.SiteID)
	})
}

// LikeComment optimistically likes the comment and confirms remotely.
//
// Side channel: liking a comment that is not approved in the displayed state
// first triggers an approve action. The approve runs with its own override,
// confirmation, and rollback; its outcome is not chained into the like's.
func (s *ActionsService) LikeComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "LikeComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("like", t, err, done)
		return
	}

	if !s.displayedApproved(ctx, t) {
		s.ApproveComment(ctx, t, nil)
	}

	s.toggle(ctx, t, t.commentEntity(), ActionLike, true, done, func(cctx context.Context) error {
		return s.Gateway.LikeComment(cctx, t.SiteID, t.CommentID)
	})
}

// UnlikeComment optimistically removes the like and confirms remotely.
func (s *ActionsService) UnlikeComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "UnlikeComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("unlike", t, err, done)
		return
	}
	s.toggle(ctx, t, t.commentEntity(), ActionLike, false, done, func(cctx context.Context) error {
		return s.Gateway.UnlikeComment(cctx, t.SiteID, t.CommentID)
	})
}

// ApproveComment optimistically approves the comment and confirms remotely.
func (s *ActionsService) ApproveComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "ApproveComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("approve", t, err, done)
		return
	}
	s.toggle(ctx, t, t.commentEntity(), ActionApprove, true, done, func(cctx context.Context) error {
		return s.Gateway.ApproveComment(cctx, t.SiteID, t.CommentID)
	})
}

// UnapproveComment optimistically unapproves the comment and confirms remotely.
func (s *ActionsService) UnapproveComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "UnapproveComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("unapprove", t, err, done)
		return
	}
	s.toggle(ctx, t, t.commentEntity(), ActionApprove, false, done, func(cctx context.Context) error {
		return s.Gateway.UnapproveComment(cctx, t.SiteID, t.CommentID)
	})
}

// ReplyToComment posts a reply. No optimistic mutation: the reply only
// exists once the remote confirms it, at which point the owning
// notification's cache entry is invalidated so the thread refetches.
func (s *ActionsService) ReplyToComment(ctx context.Context, t Target, content string, done func(bool)) {
	ctx, span := s.startSpan(ctx, "ReplyToComment", t)
	defer span.End()

	content = norm.NFC.String(content)
	if err := s.requireContent(t, content); err != nil {
		s.precondition("reply", t, err, done)
		return
	}
	s.fire(ctx, t, "reply", done, true, func(cctx context.Context) error {
		return s.Gateway.ReplyToComment(cctx, t.SiteID, t.CommentID, content)
	})
}

// UpdateComment replaces the comment's content. The local baseline is
// overwritten directly before the remote call (not via the override
// mechanism) and is deliberately left in place when the remote call fails;
// the false outcome tells the caller to refetch if it wants remote truth.
func (s *ActionsService) UpdateComment(ctx context.Context, t Target, content string, done func(bool)) {
	ctx, span := s.startSpan(ctx, "UpdateComment", t)
	defer span.End()

	content = norm.NFC.String(content)
	if err := s.requireContent(t, content); err != nil {
		s.precondition("update", t, err, done)
		return
	}

	// Immediate optimistic display update, sticky on failure.
	if err := repo.UpdateCommentContent(ctx, s.DB, t.SiteID, t.CommentID, content); err != nil && err != repo.ErrNotFound {
		log.Warn().Err(err).
			Int64("site_id", t.SiteID).
			Int64("comment_id", t.CommentID).
			Msg("local content overwrite failed")
	}

	s.fire(ctx, t, "update", done, true, func(cctx context.Context) error {
		return s.Gateway.UpdateComment(cctx, t.SiteID, t.CommentID, content)
	})
}

// SpamComment flags the comment as spam remotely. No optimistic mutation and
// no cache invalidation; a confirmed spam drops the local comment record,
// since the remote no longer shows the comment.
func (s *ActionsService) SpamComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "SpamComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("spam", t, err, done)
		return
	}
	s.fire(ctx, t, "spam", done, false, func(cctx context.Context) error {
		if err := s.Gateway.SpamComment(cctx, t.SiteID, t.CommentID); err != nil {
			return err
		}
		s.dropBaseline(cctx, t)
		return nil
	})
}

// DeleteComment trashes the comment remotely. No optimistic mutation and no
// cache invalidation; a confirmed trash drops the local comment record, since
// the remote no longer shows the comment.
func (s *ActionsService) DeleteComment(ctx context.Context, t Target, done func(bool)) {
	ctx, span := s.startSpan(ctx, "DeleteComment", t)
	defer span.End()

	if err := requireComment(t); err != nil {
		s.precondition("delete", t, err, done)
		return
	}
	s.fire(ctx, t, "delete", done, false, func(cctx context.Context) error {
		if err := s.Gateway.DeleteComment(cctx, t.SiteID, t.CommentID); err != nil {
			return err
		}
		s.dropBaseline(cctx, t)
		return nil
	})
}

// --- shared machinery ---

// toggle runs the optimistic-toggle state machine:
// apply override → remote call → confirm+invalidate | revert, one outcome.
func (s *ActionsService) toggle(ctx context.Context, t Target, entity, action string, want bool, done func(bool), call func(context.Context) error) {
	key := overrides.Key{Entity: entity, Action: action}
	seq := s.Overrides.Apply(key, want)

	// Detach from the caller: an issued call runs to completion even when
	// the triggering request goes away. Trace context is preserved.
	bg := context.WithoutCancel(ctx)
	go func() {
		cctx, cancel := context.WithTimeout(bg, s.callTimeout())
		defer cancel()

		if err := call(cctx); err != nil {
			reverted := s.Overrides.Revert(key, seq)
			log.Error().Err(err).
				Str("action", action).
				Bool("target_state", want).
				Int64("site_id", t.SiteID).
				Int64("comment_id", t.CommentID).
				Bool("reverted", reverted).
				Msg("remote action failed")
			finish(done, false)
			return
		}

		s.Overrides.Confirm(key, seq)
		log.Info().
			Str("action", action).
			Bool("target_state", want).
			Int64("site_id", t.SiteID).
			Int64("comment_id", t.CommentID).
			Msg("remote action confirmed")
		s.persistBaseline(cctx, t, action, want)
		s.invalidate(cctx, t)
		finish(done, true)
	}()
}

// fire runs a non-toggle action: remote call with no optimistic override,
// one outcome, optional cache invalidation on success.
func (s *ActionsService) fire(ctx context.Context, t Target, action string, done func(bool), invalidate bool, call func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	go func() {
		cctx, cancel := context.WithTimeout(bg, s.callTimeout())
		defer cancel()

		if err := call(cctx); err != nil {
			log.Error().Err(err).
				Str("action", action).
				Int64("site_id", t.SiteID).
				Int64("comment_id", t.CommentID).
				Msg("remote action failed")
			finish(done, false)
			return
		}

		log.Info().
			Str("action", action).
			Int64("site_id", t.SiteID).
			Int64("comment_id", t.CommentID).
			Msg("remote action confirmed")
		if invalidate {
			s.invalidate(cctx, t)
		}
		finish(done, true)
	}()
}

// persistBaseline folds a confirmed comment toggle into the local baseline so
// the state outlives the override's removal on the next sync. Comments with
// no local record are skipped; the baseline only mirrors content already
// synced into a notification.
func (s *ActionsService) persistBaseline(ctx context.Context, t Target, action string, want bool) {
	if t.CommentID == 0 {
		return
	}
	var err error
	switch action {
	case ActionLike:
		err = repo.SetCommentLiked(ctx, s.DB, t.SiteID, t.CommentID, want)
	case ActionApprove:
		err = repo.SetCommentApproved(ctx, s.DB, t.SiteID, t.CommentID, want)
	default:
		return
	}
	if err != nil && err != repo.ErrNotFound {
		log.Warn().Err(err).
			Str("action", action).
			Int64("site_id", t.SiteID).
			Int64("comment_id", t.CommentID).
			Msg("baseline update failed")
	}
}

// dropBaseline removes the local record of a comment the remote no longer
// shows. Best-effort: a comment that was never synced has nothing to drop.
func (s *ActionsService) dropBaseline(ctx context.Context, t Target) {
	if err := repo.DeleteComment(ctx, s.DB, t.SiteID, t.CommentID); err != nil && err != repo.ErrNotFound {
		log.Warn().Err(err).
			Int64("site_id", t.SiteID).
			Int64("comment_id", t.CommentID).
			Msg("local comment removal failed")
	}
}

// precondition logs and delivers the immediate false outcome for an action
// whose required inputs are missing. No remote call, no mutation.
func (s *ActionsService) precondition(action string, t Target, err error, done func(bool)) {
	log.Error().Err(err).
		Str("action", action).
		Int64("site_id", t.SiteID).
		Int64("comment_id", t.CommentID).
		Msg("action rejected")
	finish(done, false)
}

// invalidate signals that the owning notification's cached representation is
// stale. Best-effort: resolution or delivery failures are logged and never
// affect the action outcome.
func (s *ActionsService) invalidate(ctx context.Context, t Target) {
	id := t.NotificationID
	if id == "" {
		var err error
		id, err = s.resolveNotification(ctx, t)
		if err != nil {
			if err != repo.ErrNotFound {
				log.Warn().Err(err).
					Int64("site_id", t.SiteID).
					Int64("comment_id", t.CommentID).
					Msg("notification lookup failed")
			}
			return
		}
	}
	if err := s.Invalidator.InvalidateNotification(ctx, id); err != nil {
		log.Warn().Err(err).Str("notification_id", id).Msg("cache invalidation failed")
	}
}

// resolveNotification finds the notification owning the target, comment
// first, falling back to the site-scoped stream entry.
func (s *ActionsService) resolveNotification(ctx context.Context, t Target) (string, error) {
	if t.CommentID != 0 {
		n, err := repo.FindNotificationByComment(ctx, s.DB, t.SiteID, t.CommentID)
		if err != nil {
			return "", err
		}
		return n.ID, nil
	}
	n, err := repo.FindNotificationBySite(ctx, s.DB, t.SiteID)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// displayedApproved reports the approval state the user currently sees:
// the optimistic override when one is applied, the local baseline otherwise.
// A comment with no local record is treated as approved so the like path
// does not invent an approve action for unknown content.
func (s *ActionsService) displayedApproved(ctx context.Context, t Target) bool {
	if v, ok := s.Overrides.Bool(overrides.Key{Entity: t.commentEntity(), Action: ActionApprove}); ok {
		return v
	}
	rec, err := repo.GetComment(ctx, s.DB, t.SiteID, t.CommentID)
	if err != nil {
		return true
	}
	return rec.Approved
}

// requireComment validates the identifiers of a comment-scoped action.
func requireComment(t Target) error {
	if t.SiteID == 0 {
		return ErrMissingSiteID
	}
	if t.CommentID == 0 {
		return ErrMissingCommentID
	}
	return nil
}

// requireContent validates identifiers plus reply/update content.
func (s *ActionsService) requireContent(t Target, content string) error {
	if err := requireComment(t); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return ErrContentTooLong
	}
	return nil
}

// startSpan opens the per-method trace span with the target attributes.
func (s *ActionsService) startSpan(ctx context.Context, op string, t Target) (context.Context, trace.Span) {
	tr := otel.Tracer("services/ActionsService")
	return tr.Start(ctx, op,
		trace.WithAttributes(
			attribute.Int64("site.id", t.SiteID),
			attribute.Int64("comment.id", t.CommentID),
		),
	)
}
