package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/client"
)

type clientResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	TaxID      string     `json:"tax_id,omitempty"`
	Contact    string     `json:"contact,omitempty"`
	Email      string     `json:"email,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	MergedInto *uuid.UUID `json:"merged_into,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type statsResponse struct {
	clientResponse
	InvoiceCount     int64 `json:"invoice_count"`
	TotalBilled      int64 `json:"total_billed"`
	TotalPaid        int64 `json:"total_paid"`
	TotalOutstanding int64 `json:"total_outstanding"`
}

type suggestionResponse struct {
	clientResponse
	Score float64 `json:"score"`
}

type matchResponse struct {
	Exact       *clientResponse      `json:"exact,omitempty"`
	Suggestions []suggestionResponse `json:"suggestions"`
}

func toResponse(c *client.Client) clientResponse {
	return clientResponse{
		ID:         c.ID,
		Name:       c.Name,
		TaxID:      c.TaxID,
		Contact:    c.Contact,
		Email:      c.Email,
		Phone:      c.Phone,
		MergedInto: c.MergedInto,
		CreatedBy:  c.CreatedBy,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toResponseList(clients []*client.Client) []clientResponse {
	resp := make([]clientResponse, len(clients))
	for i, c := range clients {
		resp[i] = toResponse(c)
	}

	return resp
}

func toStatsResponse(c *client.Client, stats *client.Stats) statsResponse {
	return statsResponse{
		clientResponse:   toResponse(c),
		InvoiceCount:     stats.InvoiceCount,
		TotalBilled:      stats.TotalBilled,
		TotalPaid:        stats.TotalPaid,
		TotalOutstanding: stats.TotalOutstanding,
	}
}

func toMatchResponse(m *client.Match) matchResponse {
	resp := matchResponse{Suggestions: make([]suggestionResponse, 0, len(m.Suggestions))}

	if m.Exact != nil {
		exact := toResponse(m.Exact)
		resp.Exact = &exact
	}

	for _, s := range m.Suggestions {
		resp.Suggestions = append(resp.Suggestions, suggestionResponse{
			clientResponse: toResponse(s.Client),
			Score:          s.Score,
		})
	}

	return resp
}
