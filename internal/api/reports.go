package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/idempotency"
	"github.com/hfi/report-gateway/internal/metrics"
	"github.com/hfi/report-gateway/internal/ratelimit"
	"github.com/hfi/report-gateway/internal/storage"
)

// maxCSVBytes caps uploaded CSV payloads.
const maxCSVBytes = 10 << 20

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	record := agencyFrom(r.Context())

	clients := record.ClientIDs
	if clients == nil {
		clients = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"agencyId": record.AgencyID,
			"clients":  clients,
		},
	})
}

func (h *Handler) handleSendReport(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.ownedClient(w, r)
	if !ok {
		return
	}

	h.runMutation(w, r, clientID, ratelimit.ActionReportSend, func(_ context.Context) (idempotency.Outcome, error) {
		body, err := json.Marshal(map[string]any{
			"data": map[string]string{
				"reportId":    "rep_" + uuid.NewString(),
				"clientId":    clientID,
				"status":      "queued",
				"requestedAt": time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return idempotency.Outcome{}, err
		}
		return idempotency.Outcome{Status: http.StatusOK, Body: body}, nil
	})
}

func (h *Handler) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	record := agencyFrom(r.Context())

	h.runMutation(w, r, clientID, ratelimit.ActionCSVUpload, func(ctx context.Context) (idempotency.Outcome, error) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCSVBytes))
		if err != nil {
			return outcomeError(http.StatusBadRequest, CodeBadRequest, "csv body unreadable or too large")
		}
		if len(data) == 0 {
			return outcomeError(http.StatusBadRequest, CodeBadRequest, "csv body is empty")
		}

		filename := "upload-" + uuid.NewString() + ".csv"
		path := fmt.Sprintf("%s/%s/%s", record.AgencyID, clientID, filename)
		if err := h.objects.Put(ctx, path, "text/csv", data); err != nil {
			return idempotency.Outcome{}, err
		}

		body, err := json.Marshal(map[string]any{
			"data": map[string]any{
				"clientId": clientID,
				"filename": filename,
				"bytes":    len(data),
			},
		})
		if err != nil {
			return idempotency.Outcome{}, err
		}
		return idempotency.Outcome{Status: http.StatusOK, Body: body}, nil
	})
}

// runMutation is the pipeline every mutating tenant endpoint goes through:
// the rate limiter decides first (reject before side effects), then the
// idempotency cache replays or executes. Quota headers go out on every
// response, allowed or not.
func (h *Handler) runMutation(w http.ResponseWriter, r *http.Request, clientID string, action ratelimit.Action, fn func(context.Context) (idempotency.Outcome, error)) {
	ctx := r.Context()

	res, err := h.limiter.Check(ctx, clientID, action)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
			return
		}
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("rate limit check failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "rate limit check failed")
		return
	}

	setRateLimitHeaders(w, res)
	metrics.RecordRateLimitCheck(string(action), res.Allowed)

	if !res.Allowed {
		h.trail.Log(&audit.Event{
			Type:      audit.EventRateLimitExceeded,
			RequestID: requestID(ctx),
			ClientID:  clientID,
			Action:    string(action),
		})
		writeError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, "rate limit exceeded")
		return
	}

	subject := idempotency.Subject{ClientID: clientID, Action: string(action)}
	out, replayed, err := h.replay.ExecuteOnce(ctx, subject, r.Header.Get(headerIdempotencyKey), fn)
	if err != nil {
		switch {
		case errors.Is(err, idempotency.ErrCheckFailed):
			writeError(w, http.StatusConflict, CodeIdempotencyCheckFailed, "idempotency check failed, retry the request")
		case errors.Is(err, storage.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, retry with backoff")
		default:
			h.logger.Error().Err(err).Str("client_id", clientID).Msg("action execution failed")
			writeError(w, http.StatusInternalServerError, CodeInternal, "action execution failed")
		}
		return
	}

	if replayed {
		metrics.IdempotentReplaysTotal.Inc()
		h.trail.Log(&audit.Event{
			Type:      audit.EventIdempotentReplay,
			RequestID: requestID(ctx),
			ClientID:  clientID,
			Action:    string(action),
		})
	}

	writeOutcome(w, out, replayed)
}

func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// writeOutcome renders a stored or fresh outcome, injecting the replayed
// marker into the top-level object so retried calls are recognizable.
func writeOutcome(w http.ResponseWriter, out idempotency.Outcome, replayed bool) {
	payload := make(map[string]json.RawMessage)
	if len(out.Body) > 0 {
		if err := json.Unmarshal(out.Body, &payload); err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "stored outcome unreadable")
			return
		}
	}
	payload["replayed"], _ = json.Marshal(replayed)

	writeJSON(w, out.Status, payload)
}

func outcomeError(status int, code, message string) (idempotency.Outcome, error) {
	body, err := json.Marshal(errorBody{Error: errorDetail{Code: code, Message: message}})
	if err != nil {
		return idempotency.Outcome{}, err
	}
	return idempotency.Outcome{Status: status, Body: body}, nil
}
