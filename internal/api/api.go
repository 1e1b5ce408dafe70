// Package api composes the credential store, rate limiter, idempotency
// cache, and signed-url authority into the gateway's HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hfi/report-gateway/internal/artifacts"
	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/credstore"
	"github.com/hfi/report-gateway/internal/idempotency"
	"github.com/hfi/report-gateway/internal/ratelimit"
	"github.com/hfi/report-gateway/internal/signedurl"
)

// Handler is the gateway's request-handling layer.
type Handler struct {
	creds     *credstore.Store
	limiter   *ratelimit.Limiter
	replay    *idempotency.Cache
	authority *signedurl.Authority
	objects   artifacts.Store
	trail     audit.Trail
	logger    zerolog.Logger

	adminSecret  string
	signedURLTTL time.Duration
}

// Config carries the handler's remaining knobs.
type Config struct {
	AdminSecret  string
	SignedURLTTL time.Duration
}

// New creates the gateway handler.
func New(
	creds *credstore.Store,
	limiter *ratelimit.Limiter,
	replay *idempotency.Cache,
	authority *signedurl.Authority,
	objects artifacts.Store,
	trail audit.Trail,
	logger zerolog.Logger,
	cfg Config,
) *Handler {
	return &Handler{
		creds:        creds,
		limiter:      limiter,
		replay:       replay,
		authority:    authority,
		objects:      objects,
		trail:        trail,
		logger:       logger.With().Str("component", "api").Logger(),
		adminSecret:  cfg.AdminSecret,
		signedURLTTL: cfg.SignedURLTTL,
	}
}

// Router builds the route table. Mutating tenant routes run through
// authentication, rate limiting, and the idempotency cache in that order:
// reject before side effects, replay before side effects.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Admin surface, guarded by the shared admin secret.
	mux.HandleFunc("POST /api/admin/agency", h.requireAdmin(h.handleCreateAgency))
	mux.HandleFunc("POST /api/admin/agency/{agencyID}/rotate-key", h.requireAdmin(h.handleRotateKey))

	// Tenant surface, guarded by x-api-key.
	mux.HandleFunc("GET /api/clients", h.requireAgency(h.handleListClients))
	mux.HandleFunc("POST /api/reports/{clientID}/send", h.requireAgency(h.handleSendReport))
	mux.HandleFunc("POST /api/reports/{clientID}/csv", h.requireAgency(h.handleUploadCSV))
	mux.HandleFunc("POST /api/reports/{clientID}/{filename}/signed-url", h.requireAgency(h.handleMintSignedURL))

	// Artifact fetch authenticates with the signed-url token alone.
	mux.HandleFunc("GET /reports/{agencyID}/{clientID}/{filename}", h.handleFetchArtifact)

	return h.withRequestID(h.withLogging(mux))
}
