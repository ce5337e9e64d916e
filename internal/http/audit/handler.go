package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/http/respond"
)

type Handler struct {
	svc *audit.Service
}

func NewHandler(svc *audit.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
}

type entryResponse struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Detail string    `json:"detail"`
	Origin string    `json:"origin,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := audit.ListFilter{}

	q := r.URL.Query()

	if s := q.Get("action"); s != "" {
		filter.Action = &s
	}

	if s := q.Get("actor"); s != "" {
		filter.Actor = &s
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

	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	entries, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = entryResponse{
			ID:     e.ID,
			At:     e.At,
			Actor:  e.Actor,
			Action: e.Action,
			Detail: e.Detail,
			Origin: e.Origin,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}
