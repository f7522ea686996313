package types

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorCode string

const (
	ErrInvalidURL    ErrorCode = "invalid_url"
	ErrBoardNotFound ErrorCode = "board_not_found"
	ErrParse         ErrorCode = "parse_error"
	ErrAuthRequired  ErrorCode = "auth_required"
	ErrCSRF          ErrorCode = "csrf_error"
	ErrRateLimited   ErrorCode = "rate_limited"
	ErrNetwork       ErrorCode = "network_error"
	ErrTimeout       ErrorCode = "timeout"
	ErrBrowser       ErrorCode = "browser_error"
	ErrUnknown       ErrorCode = "unknown"
)

// Retryable reports whether a retry could plausibly change the answer.
// Board-shape problems (bad URL, missing board, parse) never clear on retry.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrRateLimited, ErrNetwork, ErrTimeout, ErrBrowser:
		return true
	default:
		return false
	}
}

type ScrapeError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ScrapeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, msg string) *ScrapeError {
	return &ScrapeError{Code: code, Message: msg}
}

func WrapError(code ErrorCode, msg string, cause error) *ScrapeError {
	return &ScrapeError{Code: code, Message: msg, Cause: cause}
}

// CodeForStatus maps an HTTP status the client refused to retry into the
// taxonomy. Adapters use it when folding a bad response into a result.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == 404:
		return ErrBoardNotFound
	case status == 401 || status == 403:
		return ErrAuthRequired
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrNetwork
	default:
		return ErrUnknown
	}
}

// CodeOf classifies an arbitrary error. Deadline and net errors get their
// own codes so callers can decide on retry without string matching.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ErrTimeout
		}
		return ErrNetwork
	}
	return ErrUnknown
}
