package creditnote_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/creditnote"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/governance"
)

var cutover = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeLedger is an in-memory Ledger for matcher tests.
type fakeLedger struct {
	docs          map[uuid.UUID]*document.Document
	apps          map[uuid.UUID]*creditnote.Application
	paymentTotals map[uuid.UUID]int64
	entries       []audit.Entry
}

func newFakeLedger(docs ...*document.Document) *fakeLedger {
	led := &fakeLedger{
		docs:          make(map[uuid.UUID]*document.Document),
		apps:          make(map[uuid.UUID]*creditnote.Application),
		paymentTotals: make(map[uuid.UUID]int64),
	}

	for _, d := range docs {
		led.docs[d.ID] = d
	}

	return led
}

func (f *fakeLedger) GetDocumentByFolio(_ context.Context, docType document.Type, folio int64) (*document.Document, error) {
	for _, d := range f.docs {
		if d.Type == docType && d.Folio == folio {
			return d, nil
		}
	}

	return nil, document.ErrNotFound
}

func (f *fakeLedger) ListCreditNotes(_ context.Context) ([]*document.Document, error) {
	var notes []*document.Document

	for _, d := range f.docs {
		if d.Type == document.TypeCreditNote {
			notes = append(notes, d)
		}
	}

	return notes, nil
}

func (f *fakeLedger) GetCreditApplication(_ context.Context, noteID uuid.UUID) (*creditnote.Application, error) {
	app, ok := f.apps[noteID]
	if !ok {
		return nil, creditnote.ErrNoApplication
	}

	return app, nil
}

func (f *fakeLedger) CreateCreditApplication(_ context.Context, app *creditnote.Application) error {
	if _, exists := f.apps[app.NoteID]; exists {
		return fmt.Errorf("note %s already applied", app.NoteID)
	}

	app.ID = uuid.New()
	f.apps[app.NoteID] = app

	return nil
}

func (f *fakeLedger) AppliedTotals(_ context.Context, documentID uuid.UUID) (int64, int64, error) {
	var credits int64

	for _, app := range f.apps {
		if app.InvoiceID == documentID {
			credits += app.AppliedAmount
		}
	}

	return f.paymentTotals[documentID], credits, nil
}

func (f *fakeLedger) SetDocumentBalance(_ context.Context, id uuid.UUID, balance int64, state document.State) error {
	doc, ok := f.docs[id]
	if !ok {
		return document.ErrNotFound
	}

	doc.BalanceDue = balance
	doc.State = state

	return nil
}

func (f *fakeLedger) SetDocumentState(_ context.Context, id uuid.UUID, state document.State) error {
	doc, ok := f.docs[id]
	if !ok {
		return document.ErrNotFound
	}

	doc.State = state

	return nil
}

func (f *fakeLedger) RecordAudit(_ context.Context, entry audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func invoice(folio, total int64) *document.Document {
	return &document.Document{
		ID:          uuid.New(),
		Type:        document.TypeInvoice,
		Folio:       folio,
		IssueDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount: total,
		BalanceDue:  total,
		State:       document.StatePending,
	}
}

func creditNote(folio, total, refFolio int64) *document.Document {
	refType := document.TypeInvoice

	return &document.Document{
		ID:             uuid.New(),
		Type:           document.TypeCreditNote,
		Folio:          folio,
		IssueDate:      time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		TotalAmount:    total,
		ReferenceFolio: &refFolio,
		ReferenceType:  &refType,
		State:          document.StateUnmatched,
	}
}

func TestMatcher_Apply_VoidsFullyCoveredInvoice(t *testing.T) {
	inv := invoice(1581, 1_200_000)
	note := creditNote(901, 1_200_000, 1581)
	led := newFakeLedger(inv, note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{Name: "maria"})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeApplied, res.Outcome)
	assert.Equal(t, document.StateVoided, res.NewState)
	assert.Equal(t, int64(0), res.Surplus)
	assert.Equal(t, int64(0), inv.BalanceDue)
	assert.Equal(t, document.StateVoided, inv.State)
	assert.Equal(t, document.StateMatched, note.State)

	require.Len(t, led.entries, 1)
	assert.Equal(t, audit.ActionApplyCreditNote, led.entries[0].Action)
}

func TestMatcher_Apply_PartialPaymentThenCreditNote(t *testing.T) {
	// Invoice collected in part before the credit note closes the rest:
	// the result is paid, not voided.
	inv := invoice(1582, 3_000_000)
	note := creditNote(902, 2_000_000, 1582)
	led := newFakeLedger(inv, note)

	led.paymentTotals[inv.ID] = 1_000_000
	inv.BalanceDue = 2_000_000
	inv.State = document.StatePartial

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeApplied, res.Outcome)
	assert.Equal(t, document.StatePaid, res.NewState)
	assert.Equal(t, int64(0), inv.BalanceDue)
	assert.Equal(t, document.StatePaid, inv.State)
}

func TestMatcher_Apply_SurplusIsCappedAndReported(t *testing.T) {
	inv := invoice(1583, 1_500_000)
	note := creditNote(903, 2_000_000, 1583)
	led := newFakeLedger(inv, note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, int64(500_000), res.Surplus)
	assert.Equal(t, int64(1_500_000), led.apps[note.ID].AppliedAmount)
	assert.Equal(t, document.StateVoided, inv.State)
}

func TestMatcher_Apply_Idempotent(t *testing.T) {
	inv := invoice(1584, 1_000_000)
	note := creditNote(904, 400_000, 1584)
	led := newFakeLedger(inv, note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	first, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)
	require.Equal(t, creditnote.OutcomeApplied, first.Outcome)

	balanceAfterFirst := inv.BalanceDue

	second, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeAlreadyApplied, second.Outcome)
	assert.Equal(t, balanceAfterFirst, inv.BalanceDue)
	assert.Len(t, led.apps, 1)
}

func TestMatcher_Apply_NoReference(t *testing.T) {
	note := creditNote(905, 100_000, 0)
	note.ReferenceFolio = nil
	note.ReferenceType = nil
	led := newFakeLedger(note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeNoReference, res.Outcome)
	assert.Equal(t, document.StateUnmatched, note.State)
}

func TestMatcher_Apply_InvoiceNotFound(t *testing.T) {
	note := creditNote(906, 100_000, 99999)
	led := newFakeLedger(note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeInvoiceNotFound, res.Outcome)
	assert.Empty(t, led.apps)
}

func TestMatcher_Apply_HistoricalInvoiceUntouched(t *testing.T) {
	inv := invoice(800, 2_000_000)
	inv.IssueDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	inv.BalanceDue = 0
	inv.State = document.StatePaid

	note := creditNote(907, 500_000, 800)
	led := newFakeLedger(inv, note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeHistorical, res.Outcome)
	assert.Equal(t, document.StateMatched, note.State)
	assert.Equal(t, document.StatePaid, inv.State)
	assert.Empty(t, led.apps)
}

func TestMatcher_Apply_FallsBackToExemptInvoice(t *testing.T) {
	inv := invoice(1590, 700_000)
	inv.Type = document.TypeExemptInvoice

	note := creditNote(908, 700_000, 1590)
	note.ReferenceType = nil
	led := newFakeLedger(inv, note)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	res, err := matcher.Apply(context.Background(), led, note, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, creditnote.OutcomeApplied, res.Outcome)
	require.NotNil(t, res.InvoiceFolio)
	assert.Equal(t, int64(1590), *res.InvoiceFolio)
}

func TestMatcher_ApplyAll(t *testing.T) {
	inv := invoice(1591, 1_000_000)
	applied := creditNote(910, 1_000_000, 1591)
	orphan := creditNote(911, 50_000, 77777)
	noRef := creditNote(912, 50_000, 0)
	noRef.ReferenceFolio = nil

	led := newFakeLedger(inv, applied, orphan, noRef)

	matcher := creditnote.NewMatcher(governance.NewPolicy(cutover))

	summary, err := matcher.ApplyAll(context.Background(), led, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 1, summary.InvoiceNotFound)
	assert.Equal(t, 1, summary.NoReference)
	assert.Equal(t, 2, summary.Unmatched())
}
