package webhook

import "errors"

/* Domain error taxonomy. Client errors (ErrNotFound, ErrMalformedPayload,
 * validation failures) map to 4xx responses at the HTTP boundary and are
 * never retried. Everything else propagates as a 5xx-equivalent failure.
 */
var (
	// ErrNotFound means no record matches the lookup
	ErrNotFound = errors.New("webhook not found")

	// ErrDuplicate means a record already exists for the (model, token) pair
	ErrDuplicate = errors.New("webhook already exists for model and token")

	// ErrMalformedPayload means the callback body could not be parsed
	ErrMalformedPayload = errors.New("malformed callback payload")

	ErrMissingModelID   = errors.New("model id is required")
	ErrModelIDTooLong   = errors.New("model id exceeds 24 characters")
	ErrMissingAuthToken = errors.New("auth token is required")
)
