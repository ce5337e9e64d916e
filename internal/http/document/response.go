package document

import (
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
)

type documentResponse struct {
	ID                uuid.UUID      `json:"id"`
	Type              document.Type  `json:"type"`
	Folio             int64          `json:"folio"`
	IssueDate         string         `json:"issue_date"`
	Counterparty      string         `json:"counterparty"`
	CounterpartyTaxID string         `json:"counterparty_tax_id,omitempty"`
	NetAmount         int64          `json:"net_amount"`
	TaxAmount         int64          `json:"tax_amount"`
	ExemptAmount      int64          `json:"exempt_amount"`
	TotalAmount       int64          `json:"total_amount"`
	ReferenceFolio    *int64         `json:"reference_folio,omitempty"`
	ReferenceType     *document.Type `json:"reference_type,omitempty"`
	TaxPeriod         string         `json:"tax_period"`
	SourceFile        string         `json:"source_file,omitempty"`
	ClientID          *uuid.UUID     `json:"client_id,omitempty"`
	ClientName        *string        `json:"client_name,omitempty"`
	CourseLabel       *string        `json:"course_label,omitempty"`
	BalanceDue        int64          `json:"balance_due"`
	State             document.State `json:"state"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

type allocationRecordResponse struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	PaymentDate   string    `json:"payment_date"`
	AppliedAmount int64     `json:"applied_amount"`
	Memo          string    `json:"memo,omitempty"`
	RegisteredBy  string    `json:"registered_by"`
	AppliedAt     time.Time `json:"applied_at"`
}

type creditRecordResponse struct {
	NoteID        uuid.UUID `json:"note_id"`
	NoteFolio     int64     `json:"note_folio"`
	NoteTotal     int64     `json:"note_total"`
	AppliedAmount int64     `json:"applied_amount"`
	AppliedAt     time.Time `json:"applied_at"`
}

type detailResponse struct {
	documentResponse
	Allocations []allocationRecordResponse `json:"allocations"`
	Credits     []creditRecordResponse     `json:"credits"`
}

func toResponse(doc *document.Document) documentResponse {
	return documentResponse{
		ID:                doc.ID,
		Type:              doc.Type,
		Folio:             doc.Folio,
		IssueDate:         doc.IssueDate.Format(time.DateOnly),
		Counterparty:      doc.Counterparty,
		CounterpartyTaxID: doc.CounterpartyTaxID,
		NetAmount:         doc.NetAmount,
		TaxAmount:         doc.TaxAmount,
		ExemptAmount:      doc.ExemptAmount,
		TotalAmount:       doc.TotalAmount,
		ReferenceFolio:    doc.ReferenceFolio,
		ReferenceType:     doc.ReferenceType,
		TaxPeriod:         doc.TaxPeriod,
		SourceFile:        doc.SourceFile,
		ClientID:          doc.ClientID,
		ClientName:        doc.ClientName,
		CourseLabel:       doc.CourseLabel,
		BalanceDue:        doc.BalanceDue,
		State:             doc.State,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func toResponseList(docs []*document.Document) []documentResponse {
	resp := make([]documentResponse, len(docs))
	for i, doc := range docs {
		resp[i] = toResponse(doc)
	}

	return resp
}

func toDetailResponse(detail *document.Detail) detailResponse {
	resp := detailResponse{
		documentResponse: toResponse(detail.Document),
		Allocations:      make([]allocationRecordResponse, 0, len(detail.Allocations)),
		Credits:          make([]creditRecordResponse, 0, len(detail.Credits)),
	}

	for _, rec := range detail.Allocations {
		resp.Allocations = append(resp.Allocations, allocationRecordResponse{
			PaymentID:     rec.PaymentID,
			PaymentDate:   rec.PaymentDate.Format(time.DateOnly),
			AppliedAmount: rec.AppliedAmount,
			Memo:          rec.Memo,
			RegisteredBy:  rec.RegisteredBy,
			AppliedAt:     rec.AppliedAt,
		})
	}

	for _, rec := range detail.Credits {
		resp.Credits = append(resp.Credits, creditRecordResponse{
			NoteID:        rec.NoteID,
			NoteFolio:     rec.NoteFolio,
			NoteTotal:     rec.NoteTotal,
			AppliedAmount: rec.AppliedAmount,
			AppliedAt:     rec.AppliedAt,
		})
	}

	return resp
}
