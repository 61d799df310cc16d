package drive

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every outcome of a blob-storage call (and the codec /
// record-store failures layered on top). The record store's retry policy
// branches on Kind, so classification must be total and deterministic:
// each (status, payload) pair maps to exactly one Kind.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindDuplicateIdentity   Kind = "duplicate_identity"
	KindRateLimited         Kind = "rate_limited"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindResumableIncomplete Kind = "resumable_incomplete"
	KindSessionExpired      Kind = "session_expired"
	KindInvalidCredentials  Kind = "invalid_credentials"
	KindSerializationFailed Kind = "serialization_failed"
	KindParseFailed         Kind = "parse_failed"
	KindNetwork             Kind = "network_error"
	KindUnknown             Kind = "unknown"
)

// Error is the typed failure returned by every drive, codec and record
// store operation. Status is the HTTP status when one was received, 0
// otherwise. Raw keeps the provider payload for diagnostics on
// unclassified outcomes.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("drive: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("drive: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error without an HTTP status (codec faults,
// record-store invariant violations).
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError attaches a Kind to an underlying error.
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown when err is not a
// drive error. KindOf(nil) is not meaningful; callers check err != nil first.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// Provider reason strings embedded in 403 payloads. The provider
// multiplexes very different failures over 403, so the body is the only
// way to tell a throttle from an exhausted quota.
const (
	reasonRateLimit     = "ratelimitexceeded"
	reasonUserRateLimit = "userratelimitexceeded"
	reasonQuota         = "storagequotaexceeded"
)

// classify maps an HTTP response to its Kind. session marks responses
// received on a resumable-session URL, where a 404 means the session
// expired rather than the file being gone.
func classify(status int, body []byte, session bool) Kind {
	payload := strings.ToLower(string(body))
	switch {
	case status == 308:
		// "Resume Incomplete": the transfer can be re-attempted against
		// the same session URL.
		return KindResumableIncomplete
	case status == 401:
		return KindInvalidCredentials
	case status == 429:
		return KindRateLimited
	case status == 403:
		if strings.Contains(payload, reasonQuota) {
			return KindQuotaExceeded
		}
		if strings.Contains(payload, reasonRateLimit) || strings.Contains(payload, reasonUserRateLimit) {
			return KindRateLimited
		}
		return KindUnknown
	case status == 404:
		if session {
			return KindSessionExpired
		}
		return KindNotFound
	default:
		return KindUnknown
	}
}

// classifyResponse wraps classify into a ready *Error.
func classifyResponse(status int, body []byte, session bool, op string) *Error {
	kind := classify(status, body, session)
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: fmt.Sprintf("%s failed", op),
		Raw:     string(body),
	}
}
