package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/credstore"
	"github.com/hfi/report-gateway/internal/metrics"
	"github.com/hfi/report-gateway/internal/storage"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyAgency    contextKey = "agency"
)

const (
	headerAPIKey         = "x-api-key"
	headerAdminSecret    = "x-admin-secret"
	headerIdempotencyKey = "idempotency-key"
	headerRequestID      = "X-Request-Id"
)

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func agencyFrom(ctx context.Context) *credstore.AgencyRecord {
	record, _ := ctx.Value(ctxKeyAgency).(*credstore.AgencyRecord)
	return record
}

// withRequestID assigns each request an ID, honoring one supplied upstream.
func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		metrics.RequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		h.logger.Info().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request handled")
	})
}

// requireAdmin guards the admin surface with a constant-time secret check.
// Missing and wrong secrets are indistinguishable to the caller.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(headerAdminSecret)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminSecret)) != 1 {
			metrics.AuthFailuresTotal.WithLabelValues("admin").Inc()
			h.trail.Log(&audit.Event{
				Type:      audit.EventAdminRejected,
				RequestID: requestID(r.Context()),
			})
			writeError(w, http.StatusForbidden, CodeInvalidAdminSecret, "admin secret missing or invalid")
			return
		}
		next(w, r)
	}
}

// requireAgency authenticates the x-api-key header against the credential
// store and places the agency record on the request context.
func (h *Handler) requireAgency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := h.creds.Authenticate(r.Context(), r.Header.Get(headerAPIKey))
		if err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
				return
			}
			metrics.AuthFailuresTotal.WithLabelValues("api_key").Inc()
			h.trail.Log(&audit.Event{
				Type:      audit.EventAuthRejected,
				RequestID: requestID(r.Context()),
				Reason:    CodeInvalidAPIKey,
			})
			writeError(w, http.StatusUnauthorized, CodeInvalidAPIKey, "api key missing or invalid")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAgency, record)))
	}
}

// ownedClient resolves the clientID path segment against the authenticated
// agency. Unowned clients are a 404 so tenants cannot probe each other.
func (h *Handler) ownedClient(w http.ResponseWriter, r *http.Request) (string, bool) {
	record := agencyFrom(r.Context())
	clientID := r.PathValue("clientID")
	if record == nil || !record.OwnsClient(clientID) {
		writeError(w, http.StatusNotFound, CodeClientNotFound, "client not found")
		return "", false
	}
	return clientID, true
}
