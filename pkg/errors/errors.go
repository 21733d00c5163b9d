package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures by how far they are allowed to propagate
type ErrorType string

const (
	// ErrorTypeAuth is fatal for the whole run
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeRemoteAPI aborts the pagination of the current blog only
	ErrorTypeRemoteAPI ErrorType = "remote_api"
	// ErrorTypeDownload is recorded against a single media item
	ErrorTypeDownload ErrorType = "download"

	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeServerError ErrorType = "server_error"
)

// Error carries the failure kind, an HTTP status (0 when none) and the cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthError reports missing or rejected credentials
func NewAuthError(message string, err error) *Error {
	return &Error{Type: ErrorTypeAuth, Message: message, Err: err}
}

// NewRemoteAPIError reports a non-2xx or malformed response from the listing/account endpoints
func NewRemoteAPIError(message string, code int, err error) *Error {
	return &Error{Type: ErrorTypeRemoteAPI, Message: message, Code: code, Err: err}
}

// NewDownloadError reports a failure fetching or writing one media asset
func NewDownloadError(message string, code int, err error) *Error {
	return &Error{Type: ErrorTypeDownload, Message: message, Code: code, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

func is(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsAuth reports whether err (or anything it wraps) is an authentication failure
func IsAuth(err error) bool { return is(err, ErrorTypeAuth) }

// IsRemoteAPI reports whether err is a remote API failure
func IsRemoteAPI(err error) bool { return is(err, ErrorTypeRemoteAPI) }

// IsDownload reports whether err is a media download failure
func IsDownload(err error) bool { return is(err, ErrorTypeDownload) }

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
