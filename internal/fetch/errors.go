// Package fetch holds the transport-independent half of the Fetcher: error
// kinds, block detection, identity rotation, render-mode routing and the
// rate-limited decorator every adapter fetches through.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Kind classifies a failed fetch.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindBlocked   Kind = "blocked"
	KindTransport Kind = "transport"
	KindHTTP      Kind = "http_error"
)

// Error is returned by every Fetcher for a failed retrieval.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Code(), e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Code(), e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s", e.Code(), e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// Code is the stable label used in logs, metrics and run notes.
func (e *Error) Code() string {
	if e.Kind == KindHTTP {
		return "fetch_http_" + strconv.Itoa(e.StatusCode)
	}
	return "fetch_" + string(e.Kind)
}

// Retryable reports whether the worker should try the same page again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	}
	return false
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsKind reports whether err is a fetch error of kind k.
func IsKind(err error, k Kind) bool {
	fe, ok := AsError(err)
	return ok && fe.Kind == k
}

// Wrap classifies a transport-level failure. ctx is the per-request context;
// its deadline expiring counts as a timeout.
func Wrap(ctx context.Context, url string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	kind := KindTransport
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: url, Err: err}
}
