package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies a provider failure for retry decisions and for the
// error recorded on a failed task.
type Category string

// Provider error categories.
const (
	CategoryAuth       Category = "auth"
	CategoryRateLimit  Category = "rate_limit"
	CategoryBadRequest Category = "bad_request"
	CategoryTimeout    Category = "timeout"
	CategoryNetwork    Category = "network"
	CategoryUpstream   Category = "upstream"
)

// Error is a categorized provider failure.
type Error struct {
	Provider string
	Category Category
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider error (%s): %s: %v", e.Provider, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Category, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying. Timeouts,
// network failures and rate limits may resolve on their own; auth and
// malformed-request failures will not.
func (e *Error) Transient() bool {
	switch e.Category {
	case CategoryTimeout, CategoryNetwork, CategoryRateLimit:
		return true
	}
	return false
}

// NewError creates a categorized provider error.
func NewError(provider string, category Category, message string, err error) *Error {
	return &Error{Provider: provider, Category: category, Message: message, Err: err}
}

// categorizeStatus maps an upstream HTTP status code to an error category.
func categorizeStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= 400 && status < 500:
		return CategoryBadRequest
	default:
		return CategoryUpstream
	}
}

// categorizeTransport maps a transport-level error to a category,
// distinguishing deadline expiry from other network failures.
func categorizeTransport(err error) Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	return CategoryNetwork
}
