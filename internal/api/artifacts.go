package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hfi/report-gateway/internal/artifacts"
	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/metrics"
	"github.com/hfi/report-gateway/internal/signedurl"
)

func (h *Handler) handleMintSignedURL(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	record := agencyFrom(r.Context())
	filename := r.PathValue("filename")

	resource := signedurl.Resource{
		AgencyID: record.AgencyID,
		ClientID: clientID,
		Filename: filename,
	}
	token, expiresAt := h.authority.Mint(resource, h.signedURLTTL)

	metrics.TokensMintedTotal.Inc()
	h.trail.Log(&audit.Event{
		Type:      audit.EventTokenMinted,
		RequestID: requestID(r.Context()),
		AgencyID:  record.AgencyID,
		ClientID:  clientID,
		Resource:  resource.Canonical(),
	})

	fetchURL := fmt.Sprintf("/reports/%s/%s/%s?token=%s",
		url.PathEscape(record.AgencyID),
		url.PathEscape(clientID),
		url.PathEscape(filename),
		url.QueryEscape(token),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]string{
			"url":       fetchURL,
			"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// handleFetchArtifact serves artifact bytes to holders of a valid token.
// Every failure (malformed token, bad MAC, expiry, path mismatch, missing
// artifact) is a 404 so the response neither confirms resource existence
// nor which check failed. The specific verdict goes to metrics and audit.
func (h *Handler) handleFetchArtifact(w http.ResponseWriter, r *http.Request) {
	resource := signedurl.Resource{
		AgencyID: r.PathValue("agencyID"),
		ClientID: r.PathValue("clientID"),
		Filename: r.PathValue("filename"),
	}

	if err := h.authority.Verify(resource, r.URL.Query().Get("token")); err != nil {
		verdict, code := verdictFor(err)
		metrics.RecordTokenVerification(verdict)
		h.trail.Log(&audit.Event{
			Type:      audit.EventTokenRejected,
			RequestID: requestID(r.Context()),
			Resource:  resource.Canonical(),
			Reason:    code,
		})
		writeError(w, http.StatusNotFound, code, "not found")
		return
	}

	metrics.RecordTokenVerification("valid")

	artifact, err := h.objects.Get(r.Context(), resource.Canonical())
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "not found")
			return
		}
		h.logger.Error().Err(err).Str("resource", resource.Canonical()).Msg("artifact fetch failed")
		writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func verdictFor(err error) (verdict, code string) {
	switch {
	case errors.Is(err, signedurl.ErrTokenExpired):
		return "expired", CodeTokenExpired
	case errors.Is(err, signedurl.ErrTokenMismatch):
		return "mismatch", CodeTokenMismatch
	default:
		return "invalid", CodeTokenInvalid
	}
}
