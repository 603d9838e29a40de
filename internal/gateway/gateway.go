// Package gateway defines the remote action surface of the upstream blogging
// API and provides an HTTP client implementation.
//
// The orchestrator only depends on the RemoteGateway interface; tests inject
// doubles, production wires the HTTP Client. Every operation is synchronous
// from the caller's point of view (the orchestrator supplies the asynchrony)
// and reports failure through the returned error.
package gateway

import (
	"context"
	"fmt"
)

// RemoteGateway performs moderation and engagement actions against the
// remote source of truth. Implementations must be safe for concurrent use
// and must honor the provided context for cancellation and timeouts.
//
// A nil error means the remote confirmed the action; any non-nil error means
// the action did not take effect remotely and optimistic local state must be
// rolled back by the caller where applicable.
type RemoteGateway interface {
	FollowSite(ctx context.Context, siteID int64) error
	UnfollowSite(ctx context.Context, siteID int64) error

	ReplyToComment(ctx context.Context, siteID, commentID int64, content string) error
	UpdateComment(ctx context.Context, siteID, commentID int64, content string) error

	LikeComment(ctx context.Context, siteID, commentID int64) error
	UnlikeComment(ctx context.Context, siteID, commentID int64) error

	ApproveComment(ctx context.Context, siteID, commentID int64) error
	UnapproveComment(ctx context.Context, siteID, commentID int64) error

	SpamComment(ctx context.Context, siteID, commentID int64) error
	DeleteComment(ctx context.Context, siteID, commentID int64) error
}

// StatusError is returned by the HTTP client when the remote API answers
// with a non-2xx status. Body holds a truncated copy of the response body
// for diagnostics; it is never parsed.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote api: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("remote api: unexpected status %d: %s", e.Code, e.Body)
}
