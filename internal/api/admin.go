package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/credstore"
	"github.com/hfi/report-gateway/internal/metrics"
	"github.com/hfi/report-gateway/internal/storage"
)

type createAgencyRequest struct {
	AgencyID  string   `json:"agencyId"`
	ClientIDs []string `json:"clientIds"`
}

func (h *Handler) handleCreateAgency(w http.ResponseWriter, r *http.Request) {
	var req createAgencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgencyID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "agencyId is required")
		return
	}

	apiKey, err := h.creds.CreateAgency(r.Context(), req.AgencyID, req.ClientIDs)
	if err != nil {
		switch {
		case errors.Is(err, credstore.ErrAgencyExists):
			writeError(w, http.StatusConflict, CodeAgencyExists, "agency already exists")
		case errors.Is(err, storage.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
		default:
			h.logger.Error().Err(err).Str("agency_id", req.AgencyID).Msg("agency provisioning failed")
			writeError(w, http.StatusInternalServerError, CodeInternal, "agency provisioning failed")
		}
		return
	}

	h.trail.Log(&audit.Event{
		Type:      audit.EventAgencyCreated,
		RequestID: requestID(r.Context()),
		AgencyID:  req.AgencyID,
	})

	// The key is returned exactly once and never retrievable afterwards.
	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]string{
			"agencyId": req.AgencyID,
			"apiKey":   apiKey,
		},
	})
}

func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	agencyID := r.PathValue("agencyID")

	newKey, err := h.creds.Rotate(r.Context(), agencyID)
	if err != nil {
		switch {
		case errors.Is(err, credstore.ErrAgencyNotFound):
			writeError(w, http.StatusNotFound, CodeAgencyNotFound, "agency not found")
		case errors.Is(err, storage.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
		default:
			h.logger.Error().Err(err).Str("agency_id", agencyID).Msg("rotation failed")
			writeError(w, http.StatusInternalServerError, CodeInternal, "rotation failed")
		}
		return
	}

	metrics.KeyRotationsTotal.Inc()
	h.trail.Log(&audit.Event{
		Type:      audit.EventKeyRotated,
		RequestID: requestID(r.Context()),
		AgencyID:  agencyID,
	})

	writeJSON(w, http.StatusOK, map[string]string{"newApiKey": newKey})
}
