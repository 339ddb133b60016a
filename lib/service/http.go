// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves an http.Handler on a TCP address until its context
// ends. appmgrd uses it for the Prometheus /metrics endpoint. Its
// lifecycle matches SocketServer: Serve blocks, and cancellation
// drains in-flight requests before Serve returns.
type HTTPServer struct {
	config HTTPServerConfig
	logger *slog.Logger

	// ready is closed once the listener is bound; addr is valid from
	// then on.
	ready chan struct{}
	addr  net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, such as "127.0.0.1:9110".
	// Port 0 picks a free port; read it back with Addr. Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds how long cancellation waits for
	// in-flight requests. Zero means 10 seconds.
	ShutdownTimeout time.Duration

	// Logger receives lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

// NewHTTPServer validates config and returns a server that has not yet
// bound its address. Missing required fields are programming errors
// and panic.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	switch {
	case config.Address == "":
		panic("service.HTTPServer: Address is required")
	case config.Handler == nil:
		panic("service.HTTPServer: Handler is required")
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPServer{config: config, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the server is accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address. Only valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve binds the address and serves until ctx is cancelled. It
// returns nil after a clean shutdown and an error if the address
// cannot be bound, the server fails, or draining exceeds the shutdown
// timeout.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("http server shutting down", "address", s.addr.String())
		drainCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(drainCtx)
	})
	defer stop()

	s.logger.Info("http server listening", "address", s.addr.String())
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http on %s: %w", s.addr, err)
	}

	// Serve returns ErrServerClosed as soon as Shutdown starts; wait
	// for the drain to finish.
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
