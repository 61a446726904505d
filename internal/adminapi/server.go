// Package adminapi exposes a small HTTP surface for operating the
// outbox out of band from normal request traffic: a liveness probe and
// manual clearing of outstanding entries, ported from
// core/pkg/adapters/http/adapter.go's server/Config/Shutdown shape but
// routed with a plain http.ServeMux instead of through handler.Registry,
// since these endpoints operate the Processor itself rather than
// dispatching domain requests.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/madcok-co/conduit/core/pkg/adapters/security/hasher"
	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/processor"
)

// Config configures a Server.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OperatorKeyHash is a bcrypt hash of the API key callers must
	// present in the X-Operator-Key header. Leave empty to disable
	// auth (e.g. when the surface is only reachable on a private
	// network already).
	OperatorKeyHash string

	// SweepBatchLimit bounds how many outstanding entries POST
	// /outbox/clear attempts per call.
	SweepBatchLimit int

	// SweepOlderThan only clears entries created at or before
	// time.Now().Add(-SweepOlderThan); zero means no age floor.
	SweepOlderThan time.Duration
}

// DefaultConfig returns a Config listening on :9090 with a 100-entry
// clear batch and no age floor.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            9090,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		SweepBatchLimit: 100,
	}
}

// Server is the admin HTTP surface over a Processor.
type Server struct {
	server *http.Server
	cfg    *Config
	proc   *processor.Processor
	hasher hasher.PasswordHasher
	logger contracts.Logger
}

// New builds a Server. cfg may be nil to use DefaultConfig.
func New(proc *processor.Processor, logger contracts.Logger, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:    cfg,
		proc:   proc,
		hasher: hasher.NewBcryptHasher(nil),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /outbox/clear", s.authenticated(s.handleClear))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleClear triggers Processor.ClearOutstandingFromOutbox, honoring
// the configured batch limit and age floor.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	olderThan := time.Now()
	if s.cfg.SweepOlderThan > 0 {
		olderThan = olderThan.Add(-s.cfg.SweepOlderThan)
	}

	cleared, err := s.proc.ClearOutstandingFromOutbox(r.Context(), olderThan, s.cfg.SweepBatchLimit)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("admin api: clear outstanding failed")
		}
		s.writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"cleared": cleared})
}

// authenticated wraps next with an operator-key check when
// OperatorKeyHash is configured.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.OperatorKeyHash == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Operator-Key")
		if key == "" {
			s.writeError(w, http.StatusUnauthorized, "missing operator key")
			return
		}
		if err := s.hasher.Verify(key, s.cfg.OperatorKeyHash); err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid operator key")
			return
		}
		next(w, r)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
