package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Gmail API errors.
var (
	// ErrUnauthorized indicates invalid or expired credentials.
	ErrUnauthorized = errors.New("gmail: unauthorised (invalid credentials)")

	// ErrForbidden indicates the token lacks the required scope.
	ErrForbidden = errors.New("gmail: forbidden (insufficient permissions)")

	// ErrNotFound indicates the requested message does not exist.
	ErrNotFound = errors.New("gmail: message not found")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("gmail: rate limit exceeded")
)

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// wrapError converts a Google API error into one of the sentinels above while
// keeping the original message.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("gmail %s: %w", op, err)
	}

	var sentinel error
	switch gerr.Code {
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = ErrForbidden
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		return fmt.Errorf("gmail %s: %w", op, err)
	}
	return fmt.Errorf("gmail %s: %w: %s", op, sentinel, gerr.Message)
}
