// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const maxLine = 64 * 1024

// Config holds the admin server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// ShutdownTimeout bounds the wait for open admin connections on shutdown.
	ShutdownTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger
}

// Server serves the admin protocol: one JSON request per line, one JSON
// response per line.
type Server struct {
	config Config
	exec   *Executor
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates an admin server executing commands with exec.
func NewServer(cfg Config, exec *Executor) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config: cfg,
		exec:   exec,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen starts the admin server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts admin connections on listener until the context is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.config.Logger.Info("admin server started", slog.String("address", listener.Addr().String()))

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept admin connection", slog.String("error", err.Error()))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.track(conn, false)
				s.handleConn(conn)
			}()
		}
	}()

	<-ctx.Done()
	listener.Close()
	<-acceptDone

	// Admin sessions are idle most of the time; closing them ends their reads.
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("admin shutdown timeout exceeded")
	}
	s.config.Logger.Info("admin server stopped")
	return nil
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
	conn.Close()
}

// handleConn answers every request line of conn until it is closed.
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.config.Logger.Debug("admin connected", slog.String("remote", remote))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := enc.Encode(s.respond(line, remote)); err != nil {
			s.config.Logger.Debug("admin write failed",
				slog.String("remote", remote),
				slog.String("error", err.Error()))
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Debug("admin read failed",
			slog.String("remote", remote),
			slog.String("error", err.Error()))
	}
}

func (s *Server) respond(line, remote string) Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.config.Logger.Warn("malformed admin request",
			slog.String("remote", remote),
			slog.String("error", err.Error()))
		if s.exec.metrics != nil {
			s.exec.metrics.AdminCommands.WithLabelValues("malformed", StatusError).Inc()
		}
		return Response{Status: StatusError, Message: "malformed request: " + err.Error()}
	}
	req.Remote = remote
	return s.exec.Execute(req)
}
