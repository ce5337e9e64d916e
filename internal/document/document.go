package document

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the tax-authority document class. The numeric codes used
// by the SII sales register are 33 (invoice), 34 (exempt invoice) and
// 61 (credit note).
type Type string

const (
	TypeInvoice       Type = "invoice"
	TypeExemptInvoice Type = "exempt_invoice"
	TypeCreditNote    Type = "credit_note"
)

// IsInvoice reports whether documents of this type carry a balance and can
// receive payments.
func (t Type) IsInvoice() bool {
	return t == TypeInvoice || t == TypeExemptInvoice
}

// State is the lifecycle state of a document. Invoices move between
// pending, partial, paid and voided; credit notes are either unmatched
// (referenced invoice not found yet) or matched.
type State string

const (
	StatePending   State = "pending"
	StatePartial   State = "partial"
	StatePaid      State = "paid"
	StateVoided    State = "voided"
	StateUnmatched State = "unmatched"
	StateMatched   State = "matched"
)

// Payable reports whether an invoice in this state may receive payments.
func (s State) Payable() bool {
	return s == StatePending || s == StatePartial
}

var (
	ErrNotFound      = errors.New("document not found")
	ErrDuplicate     = errors.New("document already exists")
	ErrNotAssignable = errors.New("credit notes do not accept client or course assignment")
)

// GovernanceError marks an operation attempted against a historical
// document (issued before the cutover date).
type GovernanceError struct {
	Folio     int64
	IssueDate time.Time
}

func (e *GovernanceError) Error() string {
	return fmt.Sprintf("folio %d: issued %s, before the active governance period",
		e.Folio, e.IssueDate.Format(time.DateOnly))
}

// Document is one invoice, exempt invoice or credit note. (Type, Folio) is
// unique. BalanceDue and State are recomputed from payment allocations and
// credit applications, never edited directly.
type Document struct {
	ID                uuid.UUID
	Type              Type
	Folio             int64
	IssueDate         time.Time
	Counterparty      string // the intermediary (OTIC), not the end client
	CounterpartyTaxID string
	NetAmount         int64
	TaxAmount         int64
	ExemptAmount      int64
	TotalAmount       int64
	ReferenceFolio    *int64 // credit notes: folio of the invoice reduced
	ReferenceType     *Type
	TaxPeriod         string // "YYYY-MM"
	SourceFile        string
	ClientID          *uuid.UUID
	ClientName        *string // loaded via JOIN
	CourseLabel       *string
	BalanceDue        int64
	State             State
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// ImportParams is one parsed sales-register row. Lifecycle fields
// (BalanceDue, State) are derived at import time, not parsed.
type ImportParams struct {
	Type              Type
	Folio             int64
	IssueDate         time.Time
	Counterparty      string
	CounterpartyTaxID string
	NetAmount         int64
	TaxAmount         int64
	ExemptAmount      int64
	TotalAmount       int64
	ReferenceFolio    *int64
	ReferenceType     *Type
	TaxPeriod         string
	SourceFile        string
}

// Document builds the document to insert, lifecycle fields unset.
func (p ImportParams) Document() *Document {
	return &Document{
		Type:              p.Type,
		Folio:             p.Folio,
		IssueDate:         p.IssueDate,
		Counterparty:      p.Counterparty,
		CounterpartyTaxID: p.CounterpartyTaxID,
		NetAmount:         p.NetAmount,
		TaxAmount:         p.TaxAmount,
		ExemptAmount:      p.ExemptAmount,
		TotalAmount:       p.TotalAmount,
		ReferenceFolio:    p.ReferenceFolio,
		ReferenceType:     p.ReferenceType,
		TaxPeriod:         p.TaxPeriod,
		SourceFile:        p.SourceFile,
	}
}

// Derive computes an invoice's balance and state from the sums of applied
// payments and applied credit amounts. Pure, so balance and state cannot
// drift apart:
//
//	balance = total - payments - credits, clamped at zero
//	voided  when credit notes consumed the whole invoice amount
//	paid    when the balance reached zero otherwise
//	partial when something was applied but a balance remains
func Derive(total, paymentsApplied, creditsApplied int64) (int64, State) {
	balance := total - paymentsApplied - creditsApplied
	if balance < 0 {
		balance = 0
	}

	switch {
	case creditsApplied > 0 && creditsApplied >= total:
		return 0, StateVoided
	case balance == 0:
		return 0, StatePaid
	case balance < total:
		return balance, StatePartial
	default:
		return balance, StatePending
	}
}
