// Package client talks to the planet server over HTTP.
//
// # Overview
//
// The package provides:
//  1. A transport contract (see the Client interface) covering the calls the
//     sync core makes: Ping, article and planet metadata, public content
//     fetches and deletion.
//  2. A concrete implementation (see HTTPClient) that builds requests against
//     the configured API base, attaches the optional Basic authorization
//     header and maps responses to sentinel errors.
//  3. Helpers shared with the transfer sessions: CheckResponse, which treats
//     non-2xx statuses and application-level error payloads as failures, and
//     WriteArticleForm, which encodes the multipart body for create and edit.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors that callers match with
// errors.Is: ErrNotFound, ErrUnauthorized, ErrServerUnreachable,
// ErrConflictInProgress, ErrTransferFailure, ErrPayload, ErrPartialContent.
// HTTP-level failures are *StatusError values and application-level failures
// are *AppError values; both unwrap to the matching sentinel.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. Every call takes a context.Context
// and metadata/content fetches additionally apply the configured fetch timeout.
package client
