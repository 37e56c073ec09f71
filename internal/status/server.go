// Package status serves the run's health, liveness and prometheus metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	tracker  *Tracker
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	server   *http.Server
	listener net.Listener
}

func NewServer(addr string, tracker *Tracker, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		tracker:  tracker,
		gatherer: gatherer,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		result := s.tracker.Snapshot()
		if result == nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "The status is not available now")
			return
		}

		w.Header().Set("content-type", "application/json")
		w.Header().Set("access-control-allow-origin", "*")
		_ = json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listen address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = listener

	go func() {
		s.logger.Sugar().Infow("Status server serving", "addr", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("Status server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Sugar().Infow("Status server stopping")
		_ = s.Shutdown(context.Background())
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
