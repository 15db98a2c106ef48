// Package errs defines the tagged error kinds shared across docsmcp's
// components, per the error handling design in the specification.
package errs

import "fmt"

// Kind identifies the category of a Error.
type Kind string

const (
	// KindUser covers invalid input from the operator: bad URLs, unknown
	// site identifiers, malformed config.
	KindUser Kind = "user_error"
	// KindTransport covers HTTP timeouts, connection failures, DNS errors.
	KindTransport Kind = "transport_error"
	// KindHTTPStatus wraps a non-2xx HTTP response.
	KindHTTPStatus Kind = "http_status"
	// KindRobotsBlocked is a success-with-flag, not a failure.
	KindRobotsBlocked Kind = "robots_blocked"
	// KindParse covers tolerated malformed HTML.
	KindParse Kind = "parse_error"
	// KindEmbeddingUnavailable means the embedding service is unreachable.
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	// KindEmbeddingRejected means the embedding service returned 4xx, sent
	// a response that could not be decoded or did not match the request, or
	// lacks the configured model.
	KindEmbeddingRejected Kind = "embedding_rejected"
	// KindEmbeddingTimeout means the embedding request timed out.
	KindEmbeddingTimeout Kind = "embedding_timeout"
	// KindDimensionMismatch means a returned vector's length disagreed with
	// prior observations.
	KindDimensionMismatch Kind = "dimension_mismatch"
	// KindStore covers metadata/vector store failures.
	KindStore Kind = "store_error"
	// KindStoreCorrupt is the corruption sub-kind of KindStore.
	KindStoreCorrupt Kind = "store_corrupt"
	// KindLeaseDenied means another indexer holds the single-writer lease.
	KindLeaseDenied Kind = "lease_denied"
	// KindInterrupted means cooperative cancellation occurred.
	KindInterrupted Kind = "interrupted"
)

// Error is the tagged-variant error carried across component boundaries.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int // only meaningful for KindHTTPStatus
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, wrapping a lower-level cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatusErr builds a KindHTTPStatus error, recording the status code.
func HTTPStatusErr(status int, message string) *Error {
	return &Error{Kind: KindHTTPStatus, Message: message, HTTPStatus: status}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Retryable reports whether the HTTP status code warrants a retry per §4.1:
// transport errors, timeouts, 5xx, and 429 are retryable; other 4xx are not.
func Retryable(status int) bool {
	if status == 429 {
		return true
	}
	return status >= 500
}
