// Package transport performs the network call for an assembled request target.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks network, timeout and HTTP status failures.
var ErrTransport = errors.New("transport failure")

// Payload is a raw upstream response body and its content type.
type Payload struct {
	Body        []byte
	ContentType string
}

// Fetcher performs a GET for a request target such as
// "/2024-01-01T00:00:00Z/t_2m:C/52.52,13.405/csv".
type Fetcher interface {
	Fetch(ctx context.Context, target string) (Payload, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, target string) (Payload, error)

func (f FetcherFunc) Fetch(ctx context.Context, target string) (Payload, error) {
	return f(ctx, target)
}

// StatusError is a non-2xx upstream response. Body holds at most the first 8KiB.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransport }

// Temporary reports whether the status is worth counting against the upstream
// (5xx and 429) rather than the caller.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}
