package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/governance"
)

// Ledger is the transactional slice of the store the allocator needs. The
// reconciliation engine passes its open transaction; LockDocument must
// take a row lock so concurrent registrations against the same invoice
// serialize.
type Ledger interface {
	LockDocument(ctx context.Context, id uuid.UUID) (*document.Document, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]*Allocation, error)
	CreatePayment(ctx context.Context, p *Payment) error
	CreateAllocation(ctx context.Context, a *Allocation) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	AppliedTotals(ctx context.Context, documentID uuid.UUID) (payments, credits int64, err error)
	SetDocumentBalance(ctx context.Context, id uuid.UUID, balance int64, state document.State) error
	RecordAudit(ctx context.Context, entry audit.Entry) error
}

type AllocationInput struct {
	DocumentID    uuid.UUID
	AppliedAmount int64
}

type RegisterParams struct {
	PaymentDate time.Time
	TotalAmount int64
	Memo        string
	Allocations []AllocationInput
}

// Allocator distributes bank receipts across outstanding invoices under
// the payment-sum invariant: every committed payment's allocations add up
// to exactly its total.
type Allocator struct {
	gov governance.Policy
}

func NewAllocator(gov governance.Policy) *Allocator {
	return &Allocator{gov: gov}
}

// Register validates the whole distribution before touching anything, then
// creates the payment with its allocations and recomputes every affected
// document. Runs inside the transaction owning the Ledger: either all of
// it commits or none of it does.
func (a *Allocator) Register(ctx context.Context, led Ledger, params RegisterParams, actor audit.Actor) (*Payment, error) {
	if params.TotalAmount <= 0 {
		return nil, ErrNonPositiveAmount
	}

	if len(params.Allocations) == 0 {
		return nil, ErrNoAllocations
	}

	var allocated int64

	seen := make(map[uuid.UUID]bool, len(params.Allocations))

	for _, alloc := range params.Allocations {
		if alloc.AppliedAmount <= 0 {
			return nil, &InvalidAllocationError{
				DocumentID: alloc.DocumentID,
				Reason:     fmt.Sprintf("applied amount must be positive, got %d", alloc.AppliedAmount),
			}
		}

		if seen[alloc.DocumentID] {
			return nil, &InvalidAllocationError{
				DocumentID: alloc.DocumentID,
				Reason:     "document appears more than once in the distribution",
			}
		}

		seen[alloc.DocumentID] = true
		allocated += alloc.AppliedAmount
	}

	if allocated != params.TotalAmount {
		return nil, &UnbalancedAllocationError{Total: params.TotalAmount, Allocated: allocated}
	}

	targets, err := a.lockTargets(ctx, led, params.Allocations)
	if err != nil {
		return nil, err
	}

	for _, alloc := range params.Allocations {
		doc := targets[alloc.DocumentID]

		if !doc.Type.IsInvoice() {
			return nil, &TargetStateError{Folio: doc.Folio, State: doc.State}
		}

		if !a.gov.Covers(doc.IssueDate) {
			return nil, &document.GovernanceError{Folio: doc.Folio, IssueDate: doc.IssueDate}
		}

		if !doc.State.Payable() {
			return nil, &TargetStateError{Folio: doc.Folio, State: doc.State}
		}

		if alloc.AppliedAmount > doc.BalanceDue {
			return nil, &OverAllocationError{
				DocumentID: doc.ID,
				Folio:      doc.Folio,
				Applied:    alloc.AppliedAmount,
				BalanceDue: doc.BalanceDue,
			}
		}
	}

	p := &Payment{
		PaymentDate:  params.PaymentDate,
		TotalAmount:  params.TotalAmount,
		Memo:         sanitizeMemo(params.Memo),
		RegisteredBy: actor.Name,
	}

	if err := led.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	folios := make([]string, 0, len(params.Allocations))

	for _, alloc := range params.Allocations {
		if err := led.CreateAllocation(ctx, &Allocation{
			PaymentID:     p.ID,
			DocumentID:    alloc.DocumentID,
			AppliedAmount: alloc.AppliedAmount,
		}); err != nil {
			return nil, err
		}

		if err := a.recompute(ctx, led, targets[alloc.DocumentID]); err != nil {
			return nil, err
		}

		folios = append(folios, fmt.Sprintf("folio %d ($%d)", targets[alloc.DocumentID].Folio, alloc.AppliedAmount))
	}

	detail := fmt.Sprintf("payment %s of $%d on %s distributed over: %s",
		p.ID, p.TotalAmount, params.PaymentDate.Format(time.DateOnly), strings.Join(folios, ", "))

	if err := led.RecordAudit(ctx, actor.Entry(audit.ActionRegisterPayment, detail)); err != nil {
		return nil, err
	}

	slog.Info("payment registered",
		"payment_id", p.ID, "total", p.TotalAmount, "invoices", len(params.Allocations))

	return p, nil
}

// Void removes a payment and its allocations and restores the affected
// balances. The audit log keeps both the registration and the void.
func (a *Allocator) Void(ctx context.Context, led Ledger, paymentID uuid.UUID, actor audit.Actor) error {
	p, err := led.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	allocs, err := led.ListAllocations(ctx, paymentID)
	if err != nil {
		return err
	}

	inputs := make([]AllocationInput, 0, len(allocs))
	for _, alloc := range allocs {
		inputs = append(inputs, AllocationInput{DocumentID: alloc.DocumentID})
	}

	targets, err := a.lockTargets(ctx, led, inputs)
	if err != nil {
		return err
	}

	if err := led.DeletePayment(ctx, paymentID); err != nil {
		return err
	}

	for _, doc := range targets {
		if err := a.recompute(ctx, led, doc); err != nil {
			return err
		}
	}

	detail := fmt.Sprintf("voided payment %s of $%d dated %s, %d documents recomputed",
		p.ID, p.TotalAmount, p.PaymentDate.Format(time.DateOnly), len(targets))

	if err := led.RecordAudit(ctx, actor.Entry(audit.ActionVoidPayment, detail)); err != nil {
		return err
	}

	slog.Info("payment voided", "payment_id", p.ID, "documents", len(targets))

	return nil
}

// lockTargets locks every target document in a stable order so two
// payments over the same invoices cannot deadlock.
func (a *Allocator) lockTargets(ctx context.Context, led Ledger, allocs []AllocationInput) (map[uuid.UUID]*document.Document, error) {
	ids := make([]uuid.UUID, 0, len(allocs))
	for _, alloc := range allocs {
		ids = append(ids, alloc.DocumentID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	targets := make(map[uuid.UUID]*document.Document, len(ids))

	for _, id := range ids {
		doc, err := led.LockDocument(ctx, id)
		if err != nil {
			return nil, err
		}

		targets[id] = doc
	}

	return targets, nil
}

func (a *Allocator) recompute(ctx context.Context, led Ledger, doc *document.Document) error {
	payments, credits, err := led.AppliedTotals(ctx, doc.ID)
	if err != nil {
		return err
	}

	balance, state := document.Derive(doc.TotalAmount, payments, credits)

	return led.SetDocumentBalance(ctx, doc.ID, balance, state)
}

func sanitizeMemo(memo string) string {
	memo = strings.TrimSpace(memo)
	// Cap by runes, not bytes; a byte cut could split an accented character.
	if r := []rune(memo); len(r) > 500 {
		memo = string(r[:500])
	}

	return memo
}
