package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/features"
	"github.com/mariovalmir/chatwoot/internal/httputil"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/middleware"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/internal/tracing"
	"github.com/mariovalmir/chatwoot/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher routes a decoded webhook to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, inbox *models.Inbox, envelope payload.Payload) service.BatchReport
}

// InboxSource loads the stored inbox a webhook is addressed to.
type InboxSource interface {
	GetInbox(ctx context.Context, id int64) (*models.Inbox, error)
}

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	dispatcher Dispatcher
	inboxes    InboxSource
	envelope   *validation.EnvelopeValidator
	limiter    *RateLimiter
	checks     []HealthCheck
	flags      *features.FlagManager
	config     atomic.Pointer[models.Config]
	verbose    bool
	server     *http.Server
	now        func() time.Time
}

func NewServer(cfg *models.Config, dispatcher Dispatcher, inboxes InboxSource, logger *logrus.Logger, checks ...HealthCheck) (*Server, error) {
	envelope, err := validation.NewEnvelopeValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		dispatcher: dispatcher,
		inboxes:    inboxes,
		envelope:   envelope,
		checks:     checks,
		now:        time.Now,
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
	}
	s.config.Store(cfg)
	s.setupRoutes()
	return s, nil
}

// SetConfig swaps the configuration used for new requests.
func (s *Server) SetConfig(cfg *models.Config) {
	s.config.Store(cfg)
}

func (s *Server) setupRoutes() {
	cfg := s.config.Load()
	s.router.Use(middleware.Observability(s.logger, cfg.Server.TrustProxy), middleware.DetailedLogging(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook/{provider}/{inbox:[0-9]+}", s.handleWebhook()).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	cfg := s.config.Load()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	s.logger.WithField("addr", cfg.Server.Addr).Info("Starting server")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// RunLimiterCleanup prunes the rate limiter until ctx is done.
func (s *Server) RunLimiterCleanup(ctx context.Context) {
	if s.limiter == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(s.checks))
		for _, c := range s.checks {
			if err := c.Check(ctx); err != nil {
				s.logger.WithFields(logrus.Fields{
					"component": c.Name,
					"error":     err,
				}).Warn("Health check failed")
				components[c.Name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			components[c.Name] = "healthy"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		writeJSON(w, status, map[string]any{
			"status":     overall,
			"version":    Version,
			"components": components,
		})
	}
}

type webhookResponse struct {
	Event     string `json:"event"`
	Handler   string `json:"handler,omitempty"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config.Load()
		vars := mux.Vars(r)
		provider := models.Provider(vars["provider"])
		if !provider.Valid() {
			s.reject(w, r, http.StatusNotFound, "unknown provider")
			return
		}

		if s.limiter != nil && s.flags.IsEnabled(features.FlagRateLimiting) && !s.limiter.Allow(httputil.ClientIP(r, cfg.Server.TrustProxy)) {
			w.Header().Set("Retry-After", "60")
			s.reject(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		inboxID, err := strconv.ParseInt(vars["inbox"], 10, 64)
		if err != nil {
			s.reject(w, r, http.StatusNotFound, "unknown inbox")
			return
		}
		inboxCfg, ok := cfg.InboxByID(inboxID)
		if !ok || inboxCfg.Provider != provider {
			s.reject(w, r, http.StatusNotFound, "unknown inbox")
			return
		}

		if err := validation.ValidateBodySize(r.ContentLength, cfg.Server.MaxBodyBytes); err != nil {
			s.reject(w, r, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.reject(w, r, http.StatusRequestEntityTooLarge, "request too large")
				return
			}
			s.reject(w, r, http.StatusBadRequest, "failed to read body")
			return
		}

		maxSkew := time.Duration(cfg.Server.WebhookMaxSkewSec) * time.Second
		if err := verifySignature(provider, r.Header, body, inboxCfg.WebhookSecret, maxSkew, s.now()); err != nil {
			metrics.EventDropped(string(provider), "signature")
			s.reject(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		envelope, err := payload.DecodeObject(body)
		if err != nil {
			metrics.EventDropped(string(provider), "malformed_json")
			s.reject(w, r, http.StatusBadRequest, "malformed JSON")
			return
		}
		if err := s.envelope.Validate(envelope); err != nil {
			metrics.EventDropped(string(provider), "schema")
			s.reject(w, r, http.StatusBadRequest, err.Error())
			return
		}

		inbox, err := s.inboxes.GetInbox(r.Context(), inboxID)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldInbox: inboxID,
				"error":               err,
			}).Error("Failed to load inbox")
			s.reject(w, r, http.StatusServiceUnavailable, "inbox unavailable")
			return
		}
		if inbox == nil {
			s.reject(w, r, http.StatusNotFound, "unknown inbox")
			return
		}

		ctx, span := tracing.StartSpan(r.Context(), "webhook.handle",
			attribute.String("provider", string(provider)),
			attribute.Int64("inbox.id", inboxID),
		)
		ctx = service.WithVerbose(ctx, s.verbose)
		report := s.dispatcher.Dispatch(ctx, inbox, envelope)
		span.SetAttributes(
			attribute.String("event", report.Event),
			attribute.Int("processed", report.Processed()),
			attribute.Int("failed", report.Failed()),
		)
		span.End()

		writeJSON(w, http.StatusOK, webhookResponse{
			Event:     report.Event,
			Handler:   report.Handler,
			Processed: report.Processed(),
			Skipped:   report.Skipped(),
			Failed:    report.Failed(),
		})
	}
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	s.logger.WithFields(logrus.Fields{
		service.LogFieldRequestID: tracing.RequestID(r.Context()),
		service.LogFieldRoute:     r.URL.Path,
		"reason":                  reason,
	}).Warn("Webhook rejected")

	code := apperrors.ErrCodeInvalidInput
	if status == http.StatusUnauthorized {
		code = apperrors.ErrCodeUnauthorized
	}
	writeJSON(w, status, map[string]string{"error": reason, "code": string(code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
