package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies provider failures into a flat, vendor-independent
// vocabulary. Every backend maps its own error surface onto exactly one
// Kind before the error crosses the provider boundary.
type Kind string

const (
	KindInvalidKey           Kind = "INVALID_KEY"
	KindNetworkError         Kind = "NETWORK_ERROR"
	KindRateLimit            Kind = "RATE_LIMIT"
	KindProviderDown         Kind = "PROVIDER_DOWN"
	KindInvalidResponse      Kind = "INVALID_RESPONSE"
	KindQuotaExceeded        Kind = "QUOTA_EXCEEDED"
	KindNotInitialized       Kind = "NOT_INITIALIZED"
	KindInitializationFailed Kind = "INITIALIZATION_FAILED"
	KindTimeout              Kind = "TIMEOUT"
	KindContextTooLong       Kind = "CONTEXT_TOO_LONG"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider Type
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and the owning provider type.
func NewError(p Type, kind Kind, err error) *Error {
	return &Error{Kind: kind, Provider: p, Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(p Type, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: p, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or empty string if err carries none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// kindFromStatus maps an HTTP status code onto the shared vocabulary.
func kindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindInvalidKey
	case code == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case code == http.StatusRequestTimeout:
		return KindTimeout
	case code == http.StatusRequestEntityTooLarge:
		return KindContextTooLong
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindProviderDown
	default:
		return KindInvalidResponse
	}
}

// classify maps a transport-level or already-classified error onto the
// taxonomy. Errors that already carry a Kind pass through unchanged.
func classify(p Type, err error) error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(p, KindTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(p, KindTimeout, err)
		}
		return NewError(p, KindNetworkError, err)
	}

	// Quota wording shows up in 429 bodies on some vendors; prefer the
	// more specific kind when the message says so.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "quota exceeded") {
		return NewError(p, KindQuotaExceeded, err)
	}
	if strings.Contains(msg, "context length") || strings.Contains(msg, "prompt is too long") {
		return NewError(p, KindContextTooLong, err)
	}

	return NewError(p, KindNetworkError, err)
}

// classifyStatus wraps err using the HTTP status code mapping, with a
// message-level refinement for quota and context-length bodies.
func classifyStatus(p Type, code int, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient_quota") || (strings.Contains(msg, "quota") && code == http.StatusTooManyRequests) {
		return NewError(p, KindQuotaExceeded, err)
	}
	if strings.Contains(msg, "context length") || strings.Contains(msg, "prompt is too long") || strings.Contains(msg, "maximum context") {
		return NewError(p, KindContextTooLong, err)
	}
	return NewError(p, kindFromStatus(code), err)
}
