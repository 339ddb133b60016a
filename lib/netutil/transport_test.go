// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TransportKind
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), TransportTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, TransportTimeout},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, TransportConnect},
		{"refused", fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED), TransportConnect},
		{"dns", &net.DNSError{Err: "no such host", Name: "registry.invalid", IsNotFound: true}, TransportConnect},
		{"unexpected eof", io.ErrUnexpectedEOF, TransportOther},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, TransportOther},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.want {
				t.Errorf("Classify(%v) = %s, want %s", test.err, got, test.want)
			}
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	for _, err := range []error{io.EOF, net.ErrClosed, syscall.EPIPE, fmt.Errorf("write: %w", syscall.ECONNRESET)} {
		if !IsExpectedCloseError(err) {
			t.Errorf("IsExpectedCloseError(%v) = false", err)
		}
	}
	for _, err := range []error{nil, errors.New("boom"), syscall.ECONNREFUSED} {
		if IsExpectedCloseError(err) {
			t.Errorf("IsExpectedCloseError(%v) = true", err)
		}
	}
}
