package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/stark-signer/internal/auth"
	"github.com/ILLUVRSE/stark-signer/internal/metrics"
	"github.com/ILLUVRSE/stark-signer/internal/models"
	"github.com/ILLUVRSE/stark-signer/internal/service"
)

const (
	defaultMaxBodyBytes   = 64 * 1024
	defaultRequestTimeout = 30 * time.Second
)

type Options struct {
	ServiceName    string
	Version        string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	svc      *service.Service
	keys     auth.KeyMatcher
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
	validate *validator.Validate
}

func New(svc *service.Service, keys auth.KeyMatcher, logger *zap.Logger, m *metrics.Metrics, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		svc:      svc,
		keys:     keys,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		validate: validate,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.keys, s.rejectUnauthorized, s.logger))
		r.Post("/signatures", s.handleSign)
		r.Post("/signatures/verify", s.handleVerify)
		r.Get("/signers/self", s.handleSelf)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := models.NewHealthResponse(s.opts.ServiceName, s.opts.Version)
	if err != nil {
		s.respondServiceError(w, r, fmt.Errorf("health: %w: %w", service.ErrInternal, err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req models.SignRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.metrics.Signatures.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		s.respondServiceError(w, r, err)
		return
	}

	resp, err := s.svc.Sign(r.Context(), req.Hash)
	if err != nil {
		s.metrics.Signatures.WithLabelValues(outcomeFor(err)).Inc()
		s.respondServiceError(w, r, err)
		return
	}
	s.metrics.Signatures.WithLabelValues(metrics.OutcomeSigned).Inc()
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.metrics.Verifications.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		s.respondServiceError(w, r, err)
		return
	}

	resp, err := s.svc.Verify(r.Context(), req)
	if err != nil {
		s.metrics.Verifications.WithLabelValues(outcomeFor(err)).Inc()
		s.respondServiceError(w, r, err)
		return
	}
	outcome := metrics.OutcomeInvalid
	if resp.IsValid {
		outcome = metrics.OutcomeValid
	}
	s.metrics.Verifications.WithLabelValues(outcome).Inc()
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.SelfPublicKey(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) rejectUnauthorized(w http.ResponseWriter, r *http.Request) {
	s.metrics.AuthFailures.Inc()
	respondError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
}

// decodeRequest reads a JSON body into v and runs struct validation. Unknown
// fields are ignored. Every failure is a BadRequestError.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return service.BadRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return service.BadRequest("request body is empty")
		default:
			return service.BadRequest("invalid request body: " + err.Error())
		}
	}

	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return service.BadRequest(verrs[0].Field() + " is required")
		}
		return service.BadRequest(err.Error())
	}
	return nil
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *service.BadRequestError
	if errors.As(err, &bad) {
		respondError(w, http.StatusBadRequest, bad.Error())
		return
	}
	s.logger.Error("request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	respondError(w, http.StatusInternalServerError, service.ErrInternal.Error())
}

func outcomeFor(err error) string {
	var bad *service.BadRequestError
	if errors.As(err, &bad) {
		return metrics.OutcomeBadRequest
	}
	return metrics.OutcomeError
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, models.ErrorResponse{Error: msg})
}
