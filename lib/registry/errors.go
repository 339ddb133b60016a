// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/appmgr/lib/netutil"
)

// NetworkError is a transport failure talking to the registry or
// streaming a download.
type NetworkError struct {
	Kind netutil.TransportKind
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("registry: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is a connect failure or a
// timeout.
func (e *NetworkError) Retryable() bool {
	return e.Kind == netutil.TransportConnect || e.Kind == netutil.TransportTimeout
}

// WrapTransport classifies err as a *NetworkError for op. A nil err
// stays nil and an existing *NetworkError is returned unchanged.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *NetworkError
	if errors.As(err, &existing) {
		return err
	}
	return &NetworkError{Kind: netutil.Classify(err), Op: op, Err: err}
}

// IsNetworkError reports whether err is (or wraps) a *NetworkError.
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// StatusError is a non-2xx registry reply.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("registry: GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("registry: GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the registry reported a transient failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 registry reply.
func IsNotFound(err error) bool {
	var target *StatusError
	return errors.As(err, &target) && target.StatusCode == http.StatusNotFound
}
