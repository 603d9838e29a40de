// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses via the `fail()` helper in this package. The codes give clients a
// stable, machine-readable error taxonomy supplementing the human-readable
// messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, not_found, conflict, …) mirror common HTTP
//     status semantics.
//   - action_failed is the domain code for a remote action that was issued
//     and did not confirm; the optimistic local state has been rolled back
//     and the client should surface the failure.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "action_failed",
//	  "message": "remote site rejected the action"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeActionFailed     = "action_failed"
	ErrCodeActionTimeout    = "action_timeout"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
