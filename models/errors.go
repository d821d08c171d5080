package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrCodeNavTimeout        = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeVideoNotFound     = "VIDEO_NOT_FOUND"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeDownloadFailed    = "DOWNLOAD_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeCanceled          = "REQUEST_CANCELED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Stable technical messages for the failures that reach the caller.
const (
	MsgInvalidURL   = "Invalid URL provided"
	MsgURLRequired  = "URL is required"
	MsgNoVideo      = "Could not find video URL. The ad might be an image ad or expired."
	MsgNavTimeout   = "Timed out loading the ad page"
	MsgNavFailed    = "Failed to load the ad page"
	MsgEngineDown   = "Browser engine unavailable"
	MsgQuotaGuest   = "limit_guest"
	MsgQuotaUser    = "limit_user"
	MsgServerError  = "Server Error"
	MsgDownloadFail = "Download failed"
	MsgCanceled     = "Request cancelled"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AdError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AdError struct {
	Code    string
	Message string
	Err     error
}

func (e *AdError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AdError) Unwrap() error {
	return e.Err
}

// NewAdError creates a new AdError.
func NewAdError(code, message string, err error) *AdError {
	return &AdError{Code: code, Message: message, Err: err}
}
