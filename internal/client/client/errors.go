package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound: the article or planet is absent, or a mandatory fetch did
	// not return 200. Fatal to the calling operation, never retried.
	ErrNotFound = errors.New("not found")

	ErrUnauthorized = errors.New("unauthorized")

	// ErrServerUnreachable: the liveness probe failed or the base URL is invalid.
	ErrServerUnreachable = errors.New("server unreachable")

	// ErrConflictInProgress: a creation or edit is already queued for the
	// same resource. No transfer was started.
	ErrConflictInProgress = errors.New("operation already in progress")

	// ErrTransferFailure: network-level, HTTP-level or application-level
	// failure of a request or transfer.
	ErrTransferFailure = errors.New("transfer failed")

	// ErrPayload: a multipart body could not be staged on disk. Reported
	// before any network call is made.
	ErrPayload = errors.New("payload staging failed")

	// ErrPartialContent: a best-effort sub-fetch failed. Logged, never returned
	// from a public operation.
	ErrPartialContent = errors.New("optional content unavailable")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrTransferFailure
	}
}

// AppError is a 2xx response whose body reports a failure.
type AppError struct {
	Message string
}

func (e *AppError) Error() string {
	return "server reported error: " + e.Message
}

func (e *AppError) Unwrap() error { return ErrTransferFailure }

// transportError marks err as a transfer failure while keeping it matchable.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransferFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransferFailure, err)
}
