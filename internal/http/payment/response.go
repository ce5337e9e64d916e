package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/payment"
)

type paymentResponse struct {
	ID              uuid.UUID `json:"id"`
	PaymentDate     string    `json:"payment_date"`
	TotalAmount     int64     `json:"total_amount"`
	Memo            string    `json:"memo,omitempty"`
	RegisteredBy    string    `json:"registered_by"`
	AllocationCount int64     `json:"allocation_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type allocationDetailResponse struct {
	DocumentID    uuid.UUID      `json:"document_id"`
	Folio         int64          `json:"folio"`
	DocumentType  document.Type  `json:"document_type"`
	Counterparty  string         `json:"counterparty"`
	ClientName    *string        `json:"client_name,omitempty"`
	AppliedAmount int64          `json:"applied_amount"`
	BalanceDue    int64          `json:"balance_due"`
	State         document.State `json:"state"`
	AppliedAt     time.Time      `json:"applied_at"`
}

type detailResponse struct {
	paymentResponse
	Allocations []allocationDetailResponse `json:"allocations"`
}

func toResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		PaymentDate:     p.PaymentDate.Format(time.DateOnly),
		TotalAmount:     p.TotalAmount,
		Memo:            p.Memo,
		RegisteredBy:    p.RegisteredBy,
		AllocationCount: p.AllocationCount,
		CreatedAt:       p.CreatedAt,
	}
}

func toResponseList(payments []*payment.Payment) []paymentResponse {
	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toResponse(p)
	}

	return resp
}

func toDetailResponse(detail *payment.Detail) detailResponse {
	resp := detailResponse{
		paymentResponse: toResponse(detail.Payment),
		Allocations:     make([]allocationDetailResponse, 0, len(detail.Allocations)),
	}

	for _, a := range detail.Allocations {
		resp.Allocations = append(resp.Allocations, allocationDetailResponse{
			DocumentID:    a.DocumentID,
			Folio:         a.Folio,
			DocumentType:  a.DocumentType,
			Counterparty:  a.Counterparty,
			ClientName:    a.ClientName,
			AppliedAmount: a.AppliedAmount,
			BalanceDue:    a.BalanceDue,
			State:         a.State,
			AppliedAt:     a.AppliedAt,
		})
	}

	return resp
}

func toDetailResponseList(details []*payment.Detail) []detailResponse {
	resp := make([]detailResponse, len(details))
	for i, d := range details {
		resp[i] = toDetailResponse(d)
	}

	return resp
}
