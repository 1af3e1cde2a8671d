// Package server exposes the payment-gated chat API over HTTP: a chi router
// with the x402 gate in front of the completion endpoint, plus health and
// metrics routes that stay ungated.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/relay"
	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/utils"
)

const (
	// ChatPath is the gated completion route.
	ChatPath = "/v1/chat"

	// maxBodyBytes caps the chat request body. Conversations are text; a
	// megabyte is already generous.
	maxBodyBytes = 1 << 20

	defaultReadHeaderTimeout = 10 * time.Second
)

// Config carries the listener settings.
type Config struct {
	ListenAddr string
}

// Server ties the gate, the relay and the ungated plumbing routes into one
// http.Server.
type Server struct {
	httpServer *http.Server
	gate       *Gate
	relay      *relay.Relay
	log        logger.Logger
}

// New builds the server. gate and relay must be non-nil.
func New(cfg Config, gate *Gate, rel *relay.Relay, log logger.Logger) (*Server, error) {
	if gate == nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "gate is required"}
	}
	if rel == nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "relay is required"}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{gate: gate, relay: rel, log: log}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(log))
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(gr chi.Router) {
		gr.Use(gate.Middleware)
		gr.Post(ChatPath, s.handleChat)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s, nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("server listening", map[string]any{"addr": s.httpServer.Addr})
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, including open completion streams,
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat runs after the gate admitted the request, so the receipt is
// already in the context. Everything that can fail is checked before the
// relay commits the response status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:   "Invalid request body",
			Details: "body unreadable or too large",
		})
		return
	}

	req, err := utils.ParseChatRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:   "Invalid request body",
			Details: errorDetail(err),
		})
		return
	}

	receipt, ok := ReceiptFromContext(r.Context())
	if !ok {
		// Route wired without the gate; refuse rather than stream unpaid.
		s.log.Error("chat handler reached without receipt", nil)
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
			Error: "Server configuration error",
		})
		return
	}

	if err := s.relay.Stream(r.Context(), w, req, receipt); err != nil {
		s.writeRelayError(w, err)
	}
}

// writeRelayError maps pre-commit relay failures to a status. The relay
// only returns an error before any byte is written, so the response is
// still ours to shape.
func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	var x402Err *types.X402Error
	if errors.As(err, &x402Err) {
		switch x402Err.Code {
		case types.ErrInvalidChatRequest:
			writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
				Error:   "Invalid request body",
				Details: x402Err.Message,
			})
			return
		case types.ErrUpstreamError:
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
				Error:   "Completion failed",
				Details: x402Err.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
		Error: "Completion failed",
	})
}

func errorDetail(err error) string {
	var x402Err *types.X402Error
	if errors.As(err, &x402Err) {
		return x402Err.Message
	}
	return err.Error()
}
