// Package creditnote links credit notes to the invoices they reduce and
// keeps invoice balances consistent with the applied amounts.
package creditnote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/governance"
)

// Application is one credit note actually applied against an invoice. The
// note id is unique, so re-matching an applied note is a keyed no-op.
type Application struct {
	ID            uuid.UUID
	NoteID        uuid.UUID
	InvoiceID     uuid.UUID
	AppliedAmount int64
	CreatedAt     time.Time
}

// ErrNoApplication is returned by Ledger.GetCreditApplication when the
// note has not been applied yet.
var ErrNoApplication = errors.New("credit note not applied")

// Ledger is the transactional slice of the store the matcher needs. The
// reconciliation engine passes its open transaction.
type Ledger interface {
	GetDocumentByFolio(ctx context.Context, docType document.Type, folio int64) (*document.Document, error)
	ListCreditNotes(ctx context.Context) ([]*document.Document, error)
	GetCreditApplication(ctx context.Context, noteID uuid.UUID) (*Application, error)
	CreateCreditApplication(ctx context.Context, app *Application) error
	AppliedTotals(ctx context.Context, documentID uuid.UUID) (payments, credits int64, err error)
	SetDocumentBalance(ctx context.Context, id uuid.UUID, balance int64, state document.State) error
	SetDocumentState(ctx context.Context, id uuid.UUID, state document.State) error
	RecordAudit(ctx context.Context, entry audit.Entry) error
}

// Outcome classifies what Apply did with one credit note.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeAlreadyApplied  Outcome = "already_applied"
	OutcomeNoReference     Outcome = "no_reference"
	OutcomeInvoiceNotFound Outcome = "invoice_not_found"
	OutcomeHistorical      Outcome = "historical_ignored"
	OutcomeVoidedInvoice   Outcome = "invoice_already_voided"
)

type Result struct {
	NoteFolio    int64
	NoteAmount   int64
	Outcome      Outcome
	InvoiceFolio *int64
	NewState     document.State
	// Surplus is the part of the note that exceeded the invoice's
	// remaining balance. It is audit-noted and never applied elsewhere.
	Surplus int64
}

type Summary struct {
	Applied         int
	AlreadyApplied  int
	NoReference     int
	InvoiceNotFound int
	Historical      int
	VoidedInvoices  int
}

// Unmatched counts the notes still pending manual resolution.
func (s Summary) Unmatched() int {
	return s.NoReference + s.InvoiceNotFound
}

type Matcher struct {
	gov governance.Policy
}

func NewMatcher(gov governance.Policy) *Matcher {
	return &Matcher{gov: gov}
}

// Apply links one credit note to its referenced invoice and reduces the
// invoice's balance by min(note total, remaining balance). Notes without a
// resolvable reference stay unmatched; that is a recoverable condition,
// not an error. Applying an already-applied note is a no-op.
func (m *Matcher) Apply(ctx context.Context, led Ledger, note *document.Document, actor audit.Actor) (*Result, error) {
	if note.Type != document.TypeCreditNote {
		return nil, fmt.Errorf("document folio %d is not a credit note", note.Folio)
	}

	res := &Result{NoteFolio: note.Folio, NoteAmount: note.TotalAmount}

	if _, err := led.GetCreditApplication(ctx, note.ID); err == nil {
		res.Outcome = OutcomeAlreadyApplied
		return res, nil
	} else if !errors.Is(err, ErrNoApplication) {
		return nil, err
	}

	if note.ReferenceFolio == nil {
		res.Outcome = OutcomeNoReference
		slog.Warn("credit note has no reference folio, manual review required", "folio", note.Folio)

		return res, nil
	}

	invoice, err := m.findReferencedInvoice(ctx, led, note)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			res.Outcome = OutcomeInvoiceNotFound
			slog.Warn("credit note references an unknown invoice",
				"folio", note.Folio, "reference_folio", *note.ReferenceFolio)

			return res, nil
		}

		return nil, err
	}

	res.InvoiceFolio = &invoice.Folio

	// Historical invoices imported as settled; their balances never move.
	if !m.gov.Covers(invoice.IssueDate) {
		res.Outcome = OutcomeHistorical

		if err := led.SetDocumentState(ctx, note.ID, document.StateMatched); err != nil {
			return nil, err
		}

		return res, nil
	}

	if invoice.State == document.StateVoided {
		res.Outcome = OutcomeVoidedInvoice
		res.NewState = document.StateVoided

		if err := led.SetDocumentState(ctx, note.ID, document.StateMatched); err != nil {
			return nil, err
		}

		return res, nil
	}

	applied := note.TotalAmount
	if applied > invoice.BalanceDue {
		applied = invoice.BalanceDue
	}

	res.Surplus = note.TotalAmount - applied

	app := &Application{NoteID: note.ID, InvoiceID: invoice.ID, AppliedAmount: applied}
	if err := led.CreateCreditApplication(ctx, app); err != nil {
		return nil, err
	}

	payments, credits, err := led.AppliedTotals(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	balance, state := document.Derive(invoice.TotalAmount, payments, credits)
	if err := led.SetDocumentBalance(ctx, invoice.ID, balance, state); err != nil {
		return nil, err
	}

	if err := led.SetDocumentState(ctx, note.ID, document.StateMatched); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("credit note folio %d ($%d) applied to invoice folio %d, new state %s",
		note.Folio, applied, invoice.Folio, state)
	if res.Surplus > 0 {
		detail += fmt.Sprintf("; surplus $%d exceeds the invoice balance and was not applied, manual review required", res.Surplus)
	}

	if err := led.RecordAudit(ctx, actor.Entry(audit.ActionApplyCreditNote, detail)); err != nil {
		return nil, err
	}

	res.Outcome = OutcomeApplied
	res.NewState = state

	slog.Info("credit note applied",
		"note_folio", note.Folio, "invoice_folio", invoice.Folio,
		"applied", applied, "surplus", res.Surplus, "state", state)

	return res, nil
}

// ApplyAll runs the matcher over every stored credit note. Called after
// each batch import; safe to re-run at any time.
func (m *Matcher) ApplyAll(ctx context.Context, led Ledger, actor audit.Actor) (*Summary, error) {
	notes, err := led.ListCreditNotes(ctx)
	if err != nil {
		return nil, err
	}

	var summary Summary

	for _, note := range notes {
		res, err := m.Apply(ctx, led, note, actor)
		if err != nil {
			return nil, fmt.Errorf("applying credit note folio %d: %w", note.Folio, err)
		}

		switch res.Outcome {
		case OutcomeApplied:
			summary.Applied++
		case OutcomeAlreadyApplied:
			summary.AlreadyApplied++
		case OutcomeNoReference:
			summary.NoReference++
		case OutcomeInvoiceNotFound:
			summary.InvoiceNotFound++
		case OutcomeHistorical:
			summary.Historical++
		case OutcomeVoidedInvoice:
			summary.VoidedInvoices++
		}
	}

	return &summary, nil
}

// findReferencedInvoice resolves the note's reference. When the reference
// type is missing or not an invoice type, both invoice types are tried.
func (m *Matcher) findReferencedInvoice(ctx context.Context, led Ledger, note *document.Document) (*document.Document, error) {
	if note.ReferenceType != nil && note.ReferenceType.IsInvoice() {
		return led.GetDocumentByFolio(ctx, *note.ReferenceType, *note.ReferenceFolio)
	}

	invoice, err := led.GetDocumentByFolio(ctx, document.TypeInvoice, *note.ReferenceFolio)
	if err == nil {
		return invoice, nil
	}

	if !errors.Is(err, document.ErrNotFound) {
		return nil, err
	}

	return led.GetDocumentByFolio(ctx, document.TypeExemptInvoice, *note.ReferenceFolio)
}
