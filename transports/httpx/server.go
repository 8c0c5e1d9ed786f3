package httpx

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/messaging"
	"github.com/go-chi/chi/v5"
)

const (
	// EventPath is the route every service exposes for synchronous calls
	EventPath = "/app-events/{event}"

	// TokenHeader carries the shared internal secret
	TokenHeader = "token"

	defaultMaxBodyBytes = 1 << 20
)

// ErrorHandler writes the response for a failed handler
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ServerOption configures the Server
type ServerOption func(*Server)

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithErrorHandler replaces the default 500 response for handler failures
func WithErrorHandler(handler ErrorHandler) ServerOption {
	return func(s *Server) {
		s.errorHandler = handler
	}
}

// WithMaxBodyBytes limits the request body size
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// Server serves registry handlers over HTTP
type Server struct {
	registry     *messaging.Registry
	token        []byte
	logger       *slog.Logger
	errorHandler ErrorHandler
	maxBodyBytes int64
}

// NewServer creates a Server. An empty token rejects every request.
func NewServer(registry *messaging.Registry, token string, opts ...ServerOption) *Server {
	s := &Server{
		registry:     registry,
		token:        []byte(token),
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.errorHandler == nil {
		s.errorHandler = s.defaultErrorHandler
	}
	return s
}

// Routes mounts the event endpoint on r
func (s *Server) Routes(r chi.Router) {
	r.With(s.RequireToken).HandleFunc(EventPath, s.handleEvent)
}

// Handler returns a standalone router serving only the event endpoint
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// RequireToken rejects requests whose token header does not match
func (s *Server) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.validToken(r.Header.Get(TokenHeader)) {
			s.logger.Warn("rejected sync request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, contracts.ErrorResult("Invalid Token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(got string) bool {
	if len(s.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), s.token) == 1
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	event := contracts.EventName(chi.URLParam(r, "event"))

	if !s.registry.Has(event) {
		writeJSON(w, http.StatusNotFound, contracts.ErrorResult("Unknown event"))
		return
	}

	payload, err := s.readPayload(r)
	if err != nil {
		s.logger.Debug("invalid sync payload", "event", event, "error", err)
		writeJSON(w, http.StatusBadRequest, contracts.ErrorResult("Invalid payload"))
		return
	}

	result, err := s.registry.Dispatch(r.Context(), event, payload)
	if err != nil {
		s.errorHandler(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) readPayload(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, errors.New("body too large")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, errors.New("malformed JSON")
	}
	return body, nil
}

func (s *Server) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("sync handler failed", "path", r.URL.Path, "error", err)

	message := err.Error()
	var handlerErr *messaging.HandlerError
	if errors.As(err, &handlerErr) {
		message = handlerErr.Err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, contracts.ErrorResult(message))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(contracts.ErrorResult("Unencodable result"))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
