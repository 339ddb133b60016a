// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// TransportKind classifies a transport failure.
type TransportKind string

const (
	TransportConnect TransportKind = "connect"
	TransportTimeout TransportKind = "timeout"
	TransportOther   TransportKind = "other"
)

// Classify narrows a transport error. Deadline expiry and net.Error
// timeouts are TransportTimeout; dial failures, refused connections
// and unresolvable hosts are TransportConnect.
func Classify(err error) TransportKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return TransportConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportConnect
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return TransportConnect
	}
	return TransportOther
}

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
