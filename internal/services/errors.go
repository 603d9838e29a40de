// Package services defines the business logic for notification actions and
// the notification stream. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrNotificationNotFound indicates that the requested notification does
	// not exist or is not accessible to the current user.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrMissingSiteID is returned when an action is invoked without the
	// site identifier it requires.
	ErrMissingSiteID = errors.New("site id is required")

	// ErrMissingCommentID is returned when a comment-scoped action is
	// invoked without a comment identifier.
	ErrMissingCommentID = errors.New("comment id is required")

	// ErrEmptyContent is returned when a reply or update carries no content.
	ErrEmptyContent = errors.New("content is empty")

	// ErrContentTooLong is returned when reply/update content exceeds the
	// configured maximum length limit.
	ErrContentTooLong = errors.New("content too long")

	// ErrInvalidNotificationType is returned when an ingested notification
	// event carries a type outside comment/like/follow.
	ErrInvalidNotificationType = errors.New("invalid notification type")
)
