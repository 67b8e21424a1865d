// internal/api/loan_pool.go
package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"
	"loan-pool-sync/internal/common/validation"
	"loan-pool-sync/internal/models"
	"loan-pool-sync/internal/repository"

	"github.com/gorilla/mux"
)

const (
	titleInvalidJSON    = "Payload is not valid json."
	titleInvalidPayload = "Payload is not a valid loan record."
	titleTooLarge       = "Payload is too large."
	titleNotFound       = "Not found."
	titleInternal       = "Internal server error"
)

type LoanPoolHandler struct {
	store        PoolStore
	logger       logger.Logger
	maxBodyBytes int64
}

func NewLoanPoolHandler(store PoolStore, log logger.Logger, maxBodyBytes int64) *LoanPoolHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &LoanPoolHandler{store: store, logger: log, maxBodyBytes: maxBodyBytes}
}

type errorBody struct {
	Title  string   `json:"title"`
	Detail []string `json:"detail,omitempty"`
}

// LoanRecordSchema accepts any JSON object with a non-empty string Email.
func LoanRecordSchema() validation.JSONSchema {
	minLength := 1
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"Email"},
		Properties: map[string]validation.Property{
			"Email": {
				Type:        "string",
				Description: "Borrower email, used to match CRM contacts",
				MinLength:   &minLength,
			},
		},
		AdditionalProperties: true,
	}
}

// HandleCreate handles POST /loan-data-pool. The body is stored verbatim as
// an UNPROCESSED record.
func (h *LoanPoolHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, titleTooLarge, nil)
			return
		}
		h.respondError(w, http.StatusBadRequest, titleInvalidJSON, nil)
		return
	}

	attributes, err := decodeJSON(body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, titleInvalidJSON, nil)
		return
	}

	result := validation.ValidateJSON(body, LoanRecordSchema())
	if !result.Valid {
		h.respondError(w, http.StatusUnprocessableEntity, titleInvalidPayload, result.GetErrorMessages())
		return
	}

	pool, err := h.store.Enqueue(r.Context(), string(body))
	if err != nil {
		h.logger.Error("Failed to store loan payload", map[string]interface{}{
			"error":     err.Error(),
			"requestId": w.Header().Get(requestIDHeader),
		})
		h.respondError(w, http.StatusInternalServerError, titleInternal, nil)
		return
	}

	h.logger.Info("Loan payload queued", map[string]interface{}{
		"poolId":    pool.ID,
		"requestId": w.Header().Get(requestIDHeader),
	})
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": attributes,
		},
	})
}

// HandleGet handles GET /loan-data-pool/{id} and includes the ledger entries.
func (h *LoanPoolHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": errorBody{Title: titleNotFound}})
		return
	}

	pool, err := h.store.GetByID(r.Context(), id)
	if repository.IsNotFound(err) {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": errorBody{Title: titleNotFound}})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load loan pool", map[string]interface{}{"poolId": id, "error": err.Error()})
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": errorBody{Title: titleInternal}})
		return
	}

	history, err := h.store.ListHistoryByPool(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load contact history", map[string]interface{}{"poolId": id, "error": err.Error()})
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": errorBody{Title: titleInternal}})
		return
	}
	if history == nil {
		history = []models.ContactHistory{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":   pool.ID,
			"type": "loan-data-pool",
			"attributes": map[string]interface{}{
				"status":     pool.StatusName,
				"payload":    rawOrString(pool.Payload),
				"created_at": pool.CreatedAt,
				"updated_at": pool.UpdatedAt,
			},
			"history": history,
		},
	})
}

func (h *LoanPoolHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	metrics.InboundRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	respondJSON(w, status, body)
}

func (h *LoanPoolHandler) respondError(w http.ResponseWriter, status int, title string, detail []string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error": errorBody{Title: title, Detail: detail},
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON decodes a single JSON value, keeping numbers as written.
func decodeJSON(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, stderrors.New("trailing data after JSON value")
	}
	return v, nil
}

func rawOrString(payload string) interface{} {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	return payload
}
