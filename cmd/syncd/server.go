package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler    http.Handler
	Addr       string
	TLSEnabled bool
	CertPath   string
	KeyPath    string
}

// Server is a running HTTP server.
type Server struct {
	srv    *http.Server
	errs   chan error
	logger *zap.Logger
}

// StartServer binds the listener and serves in the background. Binding
// errors are returned directly; later serve errors arrive on Errors.
func StartServer(scfg ServerConfig, logger *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", scfg.Addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{
			Addr:         scfg.Addr,
			Handler:      scfg.Handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		errs:   make(chan error, 1),
		logger: logger,
	}

	go func() {
		var err error
		if scfg.TLSEnabled {
			logger.Info("HTTPS server starting", zap.String("addr", scfg.Addr))
			err = s.srv.ServeTLS(ln, scfg.CertPath, scfg.KeyPath)
		} else {
			logger.Info("HTTP server starting", zap.String("addr", scfg.Addr))
			err = s.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()

	return s, nil
}

func (s *Server) Errors() <-chan error {
	return s.errs
}

// GracefulShutdown stops accepting requests, lets the scheduler finish its
// current sweep and drains the worker pool.
func GracefulShutdown(s *Server, deps *Dependencies, timeout time.Duration, logger *zap.Logger) {
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		logger.Warn("Error shutting down HTTP server", zap.Error(err))
	}

	if deps.Scheduler != nil {
		deps.Scheduler.Shutdown(timeout)
	}
	if deps.Pool != nil {
		deps.Pool.ShutdownWithTimeout(timeout)
	}

	logger.Info("Server stopped")
}
