// Package respond maps domain errors to HTTP status codes in one place so
// every handler reports the error taxonomy the same way.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/client"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/engine"
	"github.com/institutoandes/cobranza/internal/payment"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error       string           `json:"error"`
	Suggestions []suggestionBody `json:"suggestions,omitempty"`
	ExistingID  *uuid.UUID       `json:"existing_id,omitempty"`
}

type suggestionBody struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
}

// Error translates a domain error into its status code. Unclassified
// errors become 500 and are logged; their message is not leaked.
func Error(w http.ResponseWriter, err error) {
	var (
		dupClient  *client.DuplicateClientError
		nearDup    *client.NearDuplicateError
		govErr     *document.GovernanceError
		unbalanced *payment.UnbalancedAllocationError
		overAlloc  *payment.OverAllocationError
		invalid    *payment.InvalidAllocationError
		badTarget  *payment.TargetStateError
	)

	switch {
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, client.ErrNotFound):
		JSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})

	case errors.Is(err, engine.ErrBusy):
		w.Header().Set("Retry-After", "1")
		JSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})

	case errors.Is(err, document.ErrDuplicate):
		JSON(w, http.StatusConflict, errorResponse{Error: err.Error()})

	case errors.As(err, &dupClient):
		JSON(w, http.StatusConflict, errorResponse{Error: err.Error(), ExistingID: &dupClient.Existing.ID})

	case errors.As(err, &nearDup):
		resp := errorResponse{Error: err.Error()}
		for _, s := range nearDup.Suggestions {
			resp.Suggestions = append(resp.Suggestions, suggestionBody{
				ID: s.Client.ID, Name: s.Client.Name, Score: s.Score,
			})
		}

		JSON(w, http.StatusConflict, resp)

	case errors.As(err, &govErr),
		errors.As(err, &unbalanced),
		errors.As(err, &overAlloc),
		errors.As(err, &invalid),
		errors.As(err, &badTarget),
		errors.Is(err, document.ErrNotAssignable),
		errors.Is(err, payment.ErrNonPositiveAmount),
		errors.Is(err, payment.ErrNoAllocations),
		errors.Is(err, client.ErrMerged),
		errors.Is(err, client.ErrSameClient):
		JSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})

	default:
		slog.Error("request failed", "error", err)
		JSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
