// Copyright 2025 Certen Protocol
//
// HTTP Surface
// Routes, request validation, API-key tiering, rate limiting, and
// RFC 7807 error rendering. Adapted from pkg/server's handler-struct and
// RateLimiter/APIKeyValidator shape, generalised to the spatial-compute
// and proof-verification routes this oracle serves.

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/certen/astral-location-services/pkg/compute"
	"github.com/certen/astral-location-services/pkg/config"
	"github.com/certen/astral-location-services/pkg/plugin"
	"github.com/certen/astral-location-services/pkg/problem"
	"github.com/certen/astral-location-services/pkg/signer"
	"github.com/certen/astral-location-services/pkg/verify"
)

// Server is the oracle's HTTP surface.
type Server struct {
	cfg       *config.Config
	compute   *compute.Pipeline
	verify    *verify.Pipeline
	signer    *signer.Signer
	schemas   compute.SchemaLookup
	plugins   *plugin.Registry
	logger    *log.Logger
	limiter   *fixedWindowLimiter
	mux       *http.ServeMux
	startedAt time.Time
}

// New builds the HTTP surface over the given pipelines.
func New(cfg *config.Config, computePipeline *compute.Pipeline, verifyPipeline *verify.Pipeline, sgn *signer.Signer, schemas compute.SchemaLookup, plugins *plugin.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[httpapi] ", log.LstdFlags)
	}
	s := &Server{
		cfg:       cfg,
		compute:   computePipeline,
		verify:    verifyPipeline,
		signer:    sgn,
		schemas:   schemas,
		plugins:   plugins,
		logger:    logger,
		limiter:   newFixedWindowLimiter(cfg.RateLimitWindow),
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /compute/v0/distance", s.wrap(s.handleDistance))
	s.mux.HandleFunc("POST /compute/v0/area", s.wrap(s.handleArea))
	s.mux.HandleFunc("POST /compute/v0/length", s.wrap(s.handleLength))
	s.mux.HandleFunc("POST /compute/v0/contains", s.wrap(s.handleContains))
	s.mux.HandleFunc("POST /compute/v0/within", s.wrap(s.handleWithin))
	s.mux.HandleFunc("POST /compute/v0/intersects", s.wrap(s.handleIntersects))
	s.mux.HandleFunc("POST /verify/v0/stamp", s.wrap(s.handleVerifyStamp))
	s.mux.HandleFunc("POST /verify/v0/proof", s.wrap(s.handleVerifyProof))
	s.mux.HandleFunc("GET /verify/v0/plugins", s.wrap(s.handlePlugins))
	s.mux.HandleFunc("GET /health", s.wrap(s.handleHealth))
	s.mux.Handle("GET /metrics", s.handleMetrics())
	s.mux.HandleFunc("/", s.wrap(s.handleRoot))
}

// wrap applies body-size limiting, API-key tiering, rate limiting, and
// RFC 7807 panic/error rendering around a route handler.
func (s *Server) wrap(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rec.Header().Set("X-Request-Id", uuid.NewString())

		tier, apiKey, ok := resolveTier(r, s.cfg.APIKeys)
		if !ok {
			problem.New("unauthorised", "unknown API key", r.URL.Path).Write(rec)
			observeRequest(r.URL.Path, "unknown", start, rec.status)
			return
		}

		limit := capFor(tier, s.cfg)
		key := rateLimitKey(apiKey, r.RemoteAddr)
		allowed, remaining, reset := s.limiter.allow(key, limit, time.Now())
		rec.Header().Set("RateLimit-Limit", strconv.Itoa(limit))
		rec.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
		rec.Header().Set("RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !allowed {
			rateLimitRejections.WithLabelValues(tier).Inc()
			problem.New("rate-limited", "rate limit exceeded for this tier", r.URL.Path).Write(rec)
			observeRequest(r.URL.Path, tier, start, rec.status)
			return
		}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Printf("request %s panic: %v", rec.Header().Get("X-Request-Id"), p)
				problem.New("internal", "internal error", r.URL.Path).Write(rec)
				observeRequest(r.URL.Path, tier, start, http.StatusInternalServerError)
			}
		}()

		r.Body = http.MaxBytesReader(rec, r.Body, s.cfg.MaxBodyBytes)

		if err := h(rec, r); err != nil {
			s.renderError(rec, r, err)
		}
		observeRequest(r.URL.Path, tier, start, rec.status)
		if s.signer != nil {
			signerNonce.Set(float64(s.signer.Nonce()))
		}
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	slug := problem.ClassifyError(err)
	if slug == "payload-too-large" || isBodyTooLarge(err) {
		problem.New("payload-too-large", "request body exceeds the size limit", r.URL.Path).Write(w)
		return
	}
	s.logger.Printf("request %s error: %v", w.Header().Get("X-Request-Id"), err)
	problem.New(slug, err.Error(), r.URL.Path).Write(w)
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return problem.ErrInvalidInput("request body is empty")
		}
		if isBodyTooLarge(err) {
			return err
		}
		return problem.ErrInvalidInput("malformed JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) error {
	if r.URL.Path != "/" {
		return problem.ErrNotFound("no such endpoint: " + r.URL.Path)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "astral-location-services",
		"routes": []string{
			"/compute/v0/distance", "/compute/v0/area", "/compute/v0/length",
			"/compute/v0/contains", "/compute/v0/within", "/compute/v0/intersects",
			"/verify/v0/stamp", "/verify/v0/proof", "/verify/v0/plugins", "/health",
		},
	})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
	return nil
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]interface{}{"plugins": s.plugins.List()})
	return nil
}

// commonFields are the chainId/schema/recipient fields every compute
// request carries.
type commonFields struct {
	ChainID   int64  `json:"chainId"`
	Schema    string `json:"schema,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

func (c commonFields) toRequest() compute.Request {
	return compute.Request{ChainID: c.ChainID, Schema: c.Schema, Recipient: c.Recipient}
}

func (c commonFields) validate() error {
	if c.ChainID <= 0 {
		return problem.ErrInvalidInput("chainId is required and must be positive")
	}
	return nil
}
