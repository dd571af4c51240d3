package generation

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrNoImages is returned when a call succeeds but yields no image.
var ErrNoImages = errors.New("no images returned")

// ErrorType categorizes generation failures.
type ErrorType int

const (
	// ErrTypeUnknown indicates an unclassified failure.
	ErrTypeUnknown ErrorType = iota
	// ErrTypeInvalidRequest indicates the request was rejected before or by the service.
	ErrTypeInvalidRequest
	// ErrTypeAuth indicates a missing, invalid or unauthorized API key.
	ErrTypeAuth
	// ErrTypeQuotaExceeded indicates rate limiting or exhausted quota.
	ErrTypeQuotaExceeded
	// ErrTypeNetwork indicates a transport failure or timeout.
	ErrTypeNetwork
	// ErrTypeServer indicates a 5xx from the service or provider.
	ErrTypeServer
	// ErrTypeEmptyResult indicates a successful reply without images.
	ErrTypeEmptyResult
	// ErrTypeMalformed indicates a reply that could not be parsed or decoded.
	ErrTypeMalformed
)

var errorTypeNames = map[ErrorType]string{
	ErrTypeUnknown:        "unknown",
	ErrTypeInvalidRequest: "invalid_request",
	ErrTypeAuth:           "auth",
	ErrTypeQuotaExceeded:  "quota",
	ErrTypeNetwork:        "network",
	ErrTypeServer:         "server",
	ErrTypeEmptyResult:    "empty",
	ErrTypeMalformed:      "malformed",
}

func (t ErrorType) String() string {
	if s, ok := errorTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Error is a classified generation failure.
type Error struct {
	Type       ErrorType
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Operation != "" {
		msg = e.Operation + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is a short explanation suitable for the kiosk screen.
func (e *Error) UserMessage() string {
	switch e.Type {
	case ErrTypeAuth:
		return "The image service rejected our credentials."
	case ErrTypeQuotaExceeded:
		return "The image service is busy. Please try again in a moment."
	case ErrTypeNetwork:
		return "Could not reach the image service."
	case ErrTypeEmptyResult:
		return "The image service returned no picture."
	default:
		return "Image generation failed."
	}
}

// TypeOf returns the classification of err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Type
	}
	return ErrTypeUnknown
}

func invalidRequest(msg string) *Error {
	return &Error{Type: ErrTypeInvalidRequest, Message: msg}
}

func emptyResult(op string) *Error {
	return &Error{Type: ErrTypeEmptyResult, Operation: op, Message: "service reply had no images", Err: ErrNoImages}
}

// classifyStatus maps an HTTP status from the service to an Error.
func classifyStatus(op string, code int, detail string) *Error {
	e := &Error{Operation: op, StatusCode: code, Message: detail}
	switch {
	case code == 400 || code == 404 || code == 422:
		e.Type = ErrTypeInvalidRequest
	case code == 401 || code == 403:
		e.Type = ErrTypeAuth
	case code == 429:
		e.Type = ErrTypeQuotaExceeded
	case code >= 500:
		e.Type = ErrTypeServer
	default:
		e.Type = ErrTypeUnknown
	}
	log.Error().
		Str("operation", op).
		Int("status", code).
		Str("type", e.Type.String()).
		Str("detail", truncateString(detail, 200)).
		Msg("Image service returned error")
	return e
}

// classifyError turns a transport or SDK error into an Error.
func classifyError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := classifyStatus(op, apiErr.Code, apiErr.Message)
		e.Err = err
		return e
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrTypeNetwork, Operation: op, Message: "request cancelled or timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Type: ErrTypeNetwork, Operation: op, Message: "network error", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return &Error{Type: ErrTypeAuth, Operation: op, Message: "API key is invalid or lacks permissions", Err: err}
	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &Error{Type: ErrTypeQuotaExceeded, Operation: op, Message: "quota exceeded or rate limited", Err: err}
	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "no such host"):
		return &Error{Type: ErrTypeNetwork, Operation: op, Message: "network error", Err: err}
	default:
		return &Error{Type: ErrTypeUnknown, Operation: op, Message: "request failed", Err: err}
	}
}

// truncateString shortens s to maxLen characters, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
