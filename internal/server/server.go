// Package server implements the HTTP transport layer for the Bastion gateway.
package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/audit"
	"github.com/bastionlabs/bastion/internal/config"
	"github.com/bastionlabs/bastion/internal/provider"
	"github.com/bastionlabs/bastion/internal/ratelimit"
	"github.com/bastionlabs/bastion/internal/security/response"
	"github.com/bastionlabs/bastion/internal/telemetry"
)

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth           gateway.Authenticator
	Providers      *provider.Registry
	Limiter        *ratelimit.Limiter
	Settings       *config.Settings
	Audit          *audit.Logger      // nil = discard
	Metrics        *telemetry.Metrics // nil = no metrics
	MetricsHandler http.Handler       // nil = no /metrics route
	Version        string
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.Audit == nil {
		deps.Audit = audit.NewWithWriter(io.Discard, "INFO")
	}
	s := &server{
		deps:    deps,
		scanner: response.New(deps.Settings.InjectionThreshold, deps.Settings.ResponsePIIAction),
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)

	// System endpoints (no auth)
	r.Get("/health", s.handleHealth)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Client-facing API (auth required)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/v1/chat/completions", s.handleChatCompletion)
	})

	return r
}

type server struct {
	deps    Deps
	scanner *response.Scanner
}
