package payment_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/governance"
	"github.com/institutoandes/cobranza/internal/payment"
)

var cutover = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeLedger is an in-memory Ledger for allocator tests.
type fakeLedger struct {
	docs         map[uuid.UUID]*document.Document
	payments     map[uuid.UUID]*payment.Payment
	allocations  map[uuid.UUID][]*payment.Allocation
	creditTotals map[uuid.UUID]int64
	entries      []audit.Entry
}

func newFakeLedger(docs ...*document.Document) *fakeLedger {
	led := &fakeLedger{
		docs:         make(map[uuid.UUID]*document.Document),
		payments:     make(map[uuid.UUID]*payment.Payment),
		allocations:  make(map[uuid.UUID][]*payment.Allocation),
		creditTotals: make(map[uuid.UUID]int64),
	}

	for _, d := range docs {
		led.docs[d.ID] = d
	}

	return led
}

func (f *fakeLedger) LockDocument(_ context.Context, id uuid.UUID) (*document.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}

	return doc, nil
}

func (f *fakeLedger) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}

	return p, nil
}

func (f *fakeLedger) ListAllocations(_ context.Context, paymentID uuid.UUID) ([]*payment.Allocation, error) {
	return f.allocations[paymentID], nil
}

func (f *fakeLedger) CreatePayment(_ context.Context, p *payment.Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	f.payments[p.ID] = p

	return nil
}

func (f *fakeLedger) CreateAllocation(_ context.Context, a *payment.Allocation) error {
	a.ID = uuid.New()
	f.allocations[a.PaymentID] = append(f.allocations[a.PaymentID], a)

	return nil
}

func (f *fakeLedger) DeletePayment(_ context.Context, id uuid.UUID) error {
	if _, ok := f.payments[id]; !ok {
		return payment.ErrNotFound
	}

	delete(f.payments, id)
	delete(f.allocations, id)

	return nil
}

func (f *fakeLedger) AppliedTotals(_ context.Context, documentID uuid.UUID) (int64, int64, error) {
	var payments int64

	for _, allocs := range f.allocations {
		for _, a := range allocs {
			if a.DocumentID == documentID {
				payments += a.AppliedAmount
			}
		}
	}

	return payments, f.creditTotals[documentID], nil
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

func registerParams(total int64, allocs ...payment.AllocationInput) payment.RegisterParams {
	return payment.RegisterParams{
		PaymentDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount: total,
		Memo:        "transferencia marzo",
		Allocations: allocs,
	}
}

func TestAllocator_Register_FullReconciliation(t *testing.T) {
	inv := invoice(1580, 5_000_000)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	p, err := alloc.Register(context.Background(), led,
		registerParams(5_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 5_000_000}),
		audit.Actor{Name: "maria"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), inv.BalanceDue)
	assert.Equal(t, document.StatePaid, inv.State)
	assert.Equal(t, "maria", p.RegisteredBy)

	require.Len(t, led.entries, 1)
	assert.Equal(t, audit.ActionRegisterPayment, led.entries[0].Action)
}

func TestAllocator_Register_MemoCapKeepsRunesWhole(t *testing.T) {
	inv := invoice(1581, 1_000_000)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	// 499 ASCII runes, then accented ones straddling the 500-rune cap.
	params := registerParams(1_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 1_000_000})
	params.Memo = strings.Repeat("x", 499) + "ñoño"

	p, err := alloc.Register(context.Background(), led, params, audit.Actor{})
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(p.Memo))
	assert.Equal(t, 500, utf8.RuneCountInString(p.Memo))
	assert.True(t, strings.HasSuffix(p.Memo, "ñ"))
}

func TestAllocator_Register_SplitAcrossInvoices(t *testing.T) {
	first := invoice(1600, 3_000_000)
	second := invoice(1601, 4_000_000)
	led := newFakeLedger(first, second)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	_, err := alloc.Register(context.Background(), led,
		registerParams(5_000_000,
			payment.AllocationInput{DocumentID: first.ID, AppliedAmount: 3_000_000},
			payment.AllocationInput{DocumentID: second.ID, AppliedAmount: 2_000_000},
		), audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, document.StatePaid, first.State)
	assert.Equal(t, int64(0), first.BalanceDue)
	assert.Equal(t, document.StatePartial, second.State)
	assert.Equal(t, int64(2_000_000), second.BalanceDue)
}

func TestAllocator_Register_Unbalanced(t *testing.T) {
	inv := invoice(1602, 5_000_000)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	_, err := alloc.Register(context.Background(), led,
		registerParams(6_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 5_000_000}),
		audit.Actor{})

	var unbalanced *payment.UnbalancedAllocationError
	require.ErrorAs(t, err, &unbalanced)
	assert.Equal(t, int64(6_000_000), unbalanced.Total)
	assert.Equal(t, int64(5_000_000), unbalanced.Allocated)

	// Nothing was written.
	assert.Empty(t, led.payments)
	assert.Equal(t, int64(5_000_000), inv.BalanceDue)
}

func TestAllocator_Register_OverAllocation(t *testing.T) {
	inv := invoice(1603, 5_000_000)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	_, err := alloc.Register(context.Background(), led,
		registerParams(6_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 6_000_000}),
		audit.Actor{})

	var over *payment.OverAllocationError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, int64(1603), over.Folio)
	assert.Equal(t, int64(5_000_000), over.BalanceDue)
	assert.Empty(t, led.payments)
}

func TestAllocator_Register_HistoricalInvoiceRejected(t *testing.T) {
	inv := invoice(900, 1_000_000)
	inv.IssueDate = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	_, err := alloc.Register(context.Background(), led,
		registerParams(1_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 1_000_000}),
		audit.Actor{})

	var gov *document.GovernanceError
	require.ErrorAs(t, err, &gov)
	assert.Equal(t, int64(900), gov.Folio)
}

func TestAllocator_Register_NonPayableTargets(t *testing.T) {
	t.Run("PaidInvoice", func(t *testing.T) {
		inv := invoice(1604, 1_000_000)
		inv.BalanceDue = 0
		inv.State = document.StatePaid
		led := newFakeLedger(inv)

		alloc := payment.NewAllocator(governance.NewPolicy(cutover))

		_, err := alloc.Register(context.Background(), led,
			registerParams(500_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 500_000}),
			audit.Actor{})

		var target *payment.TargetStateError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, document.StatePaid, target.State)
	})

	t.Run("CreditNote", func(t *testing.T) {
		note := invoice(1605, 500_000)
		note.Type = document.TypeCreditNote
		note.State = document.StateUnmatched
		led := newFakeLedger(note)

		alloc := payment.NewAllocator(governance.NewPolicy(cutover))

		_, err := alloc.Register(context.Background(), led,
			registerParams(500_000, payment.AllocationInput{DocumentID: note.ID, AppliedAmount: 500_000}),
			audit.Actor{})

		var target *payment.TargetStateError
		require.ErrorAs(t, err, &target)
	})
}

func TestAllocator_Register_InvalidInputs(t *testing.T) {
	led := newFakeLedger()
	alloc := payment.NewAllocator(governance.NewPolicy(cutover))
	ctx := context.Background()

	t.Run("NonPositiveTotal", func(t *testing.T) {
		_, err := alloc.Register(ctx, led, registerParams(0), audit.Actor{})
		assert.ErrorIs(t, err, payment.ErrNonPositiveAmount)
	})

	t.Run("NoAllocations", func(t *testing.T) {
		_, err := alloc.Register(ctx, led, registerParams(1000), audit.Actor{})
		assert.ErrorIs(t, err, payment.ErrNoAllocations)
	})

	t.Run("NonPositiveAllocation", func(t *testing.T) {
		_, err := alloc.Register(ctx, led,
			registerParams(1000, payment.AllocationInput{DocumentID: uuid.New(), AppliedAmount: -5}),
			audit.Actor{})

		var invalid *payment.InvalidAllocationError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("DuplicateDocument", func(t *testing.T) {
		id := uuid.New()
		_, err := alloc.Register(ctx, led,
			registerParams(1000,
				payment.AllocationInput{DocumentID: id, AppliedAmount: 500},
				payment.AllocationInput{DocumentID: id, AppliedAmount: 500},
			), audit.Actor{})

		var invalid *payment.InvalidAllocationError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestAllocator_Void_RestoresBalances(t *testing.T) {
	inv := invoice(1610, 2_000_000)
	led := newFakeLedger(inv)

	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	p, err := alloc.Register(context.Background(), led,
		registerParams(2_000_000, payment.AllocationInput{DocumentID: inv.ID, AppliedAmount: 2_000_000}),
		audit.Actor{Name: "maria"})
	require.NoError(t, err)
	require.Equal(t, document.StatePaid, inv.State)

	err = alloc.Void(context.Background(), led, p.ID, audit.Actor{Name: "maria"})
	require.NoError(t, err)

	assert.Equal(t, int64(2_000_000), inv.BalanceDue)
	assert.Equal(t, document.StatePending, inv.State)
	assert.Empty(t, led.payments)

	require.Len(t, led.entries, 2)
	assert.Equal(t, audit.ActionVoidPayment, led.entries[1].Action)
}

func TestAllocator_Void_UnknownPayment(t *testing.T) {
	led := newFakeLedger()
	alloc := payment.NewAllocator(governance.NewPolicy(cutover))

	err := alloc.Void(context.Background(), led, uuid.New(), audit.Actor{})
	assert.ErrorIs(t, err, payment.ErrNotFound)
}
