package document

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/engine"
	"github.com/institutoandes/cobranza/internal/http/actor"
	"github.com/institutoandes/cobranza/internal/http/respond"
)

type Handler struct {
	svc    *document.Service
	engine *engine.Service
}

func NewHandler(svc *document.Service, eng *engine.Service) *Handler {
	return &Handler{svc: svc, engine: eng}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unmatched-credit-notes", h.listUnmatched)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/assignment", h.assign)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := document.ListFilter{}

	q := r.URL.Query()

	if s := q.Get("type"); s != "" {
		t := document.Type(s)
		filter.Type = &t
	}

	if s := q.Get("state"); s != "" {
		st := document.State(s)
		filter.State = &st
	}

	if s := q.Get("tax_period"); s != "" {
		filter.TaxPeriod = &s
	}

	if s := q.Get("client_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid client_id", http.StatusBadRequest)
			return
		}

		filter.ClientID = &id
	}

	if s := q.Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.StartDate = &t
		}
	}

	if s := q.Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.EndDate = &t
		}
	}

	docs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(docs))
}

func (h *Handler) listUnmatched(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListUnmatched(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(docs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	detail, err := h.svc.History(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toDetailResponse(detail))
}

type assignRequest struct {
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	CourseLabel *string    `json:"course_label,omitempty"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.ClientID == nil && req.CourseLabel == nil {
		http.Error(w, "client_id or course_label is required", http.StatusBadRequest)
		return
	}

	doc, err := h.engine.AssignClientAndCourse(r.Context(), id, engine.AssignParams{
		ClientID:    req.ClientID,
		CourseLabel: req.CourseLabel,
	}, actor.From(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(doc))
}
