package payment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/engine"
	"github.com/institutoandes/cobranza/internal/http/actor"
	"github.com/institutoandes/cobranza/internal/http/respond"
	"github.com/institutoandes/cobranza/internal/payment"
)

type Handler struct {
	svc    *payment.Service
	engine *engine.Service
}

func NewHandler(svc *payment.Service, eng *engine.Service) *Handler {
	return &Handler{svc: svc, engine: eng}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.register)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.void)
}

type allocationRequest struct {
	DocumentID    uuid.UUID `json:"document_id"`
	AppliedAmount int64     `json:"applied_amount"`
}

type registerRequest struct {
	PaymentDate string              `json:"payment_date"`
	TotalAmount int64               `json:"total_amount"`
	Memo        string              `json:"memo"`
	Allocations []allocationRequest `json:"allocations"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	paymentDate, err := time.Parse(time.DateOnly, req.PaymentDate)
	if err != nil {
		http.Error(w, "invalid payment_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	params := payment.RegisterParams{
		PaymentDate: paymentDate,
		TotalAmount: req.TotalAmount,
		Memo:        req.Memo,
	}

	for _, a := range req.Allocations {
		params.Allocations = append(params.Allocations, payment.AllocationInput{
			DocumentID:    a.DocumentID,
			AppliedAmount: a.AppliedAmount,
		})
	}

	p, err := h.engine.RegisterPayment(r.Context(), params, actor.From(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if s := q.Get("document_id"); s != "" {
		docID, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid document_id", http.StatusBadRequest)
			return
		}

		details, err := h.svc.ListByDocument(r.Context(), docID)
		if err != nil {
			respond.Error(w, err)
			return
		}

		respond.JSON(w, http.StatusOK, toDetailResponseList(details))

		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	payments, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(payments))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.engine.VoidPayment(r.Context(), id, actor.From(r.Context())); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
