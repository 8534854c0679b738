// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them programmatically while the message field stays human-oriented.
//
// Mapping of core error kinds:
//   - invalid input            → 400 bad_request
//   - unknown session          → 404 not_found
//   - access denied            → 403 access_denied (covers inactive
//     sessions, venue mismatches, and non-membership identically, so a
//     stale session cannot be used to probe venue assignments)
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeAccessDenied = "access_denied"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeMethodNotAllowed  = "method_not_allowed"
	ErrCodeStreamUnsupported = "stream_unsupported"
)
