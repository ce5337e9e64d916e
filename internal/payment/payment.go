package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
)

var (
	ErrNotFound          = errors.New("payment not found")
	ErrNonPositiveAmount = errors.New("payment amount must be positive")
	ErrNoAllocations     = errors.New("payment must be distributed to at least one invoice")
)

// UnbalancedAllocationError reports that the allocations do not add up to
// the payment total. No partial or unexplained remainder is permitted.
type UnbalancedAllocationError struct {
	Total     int64
	Allocated int64
}

func (e *UnbalancedAllocationError) Error() string {
	return fmt.Sprintf("allocations add up to $%d but the payment total is $%d (difference $%d)",
		e.Allocated, e.Total, abs(e.Total-e.Allocated))
}

// OverAllocationError names the document whose allocation exceeds its
// remaining balance.
type OverAllocationError struct {
	DocumentID uuid.UUID
	Folio      int64
	Applied    int64
	BalanceDue int64
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("folio %d: applied amount $%d exceeds the outstanding balance $%d",
		e.Folio, e.Applied, e.BalanceDue)
}

// InvalidAllocationError marks a non-positive or duplicated allocation line.
type InvalidAllocationError struct {
	DocumentID uuid.UUID
	Reason     string
}

func (e *InvalidAllocationError) Error() string {
	return fmt.Sprintf("document %s: %s", e.DocumentID, e.Reason)
}

// TargetStateError marks a document that cannot receive payments in its
// current state (credit notes, paid or voided invoices).
type TargetStateError struct {
	Folio int64
	State document.State
}

func (e *TargetStateError) Error() string {
	return fmt.Sprintf("folio %d: state %q does not accept payments", e.Folio, e.State)
}

// Payment is one bank receipt. Immutable once created; a wrong
// distribution is corrected by voiding the whole payment and registering a
// new one.
type Payment struct {
	ID           uuid.UUID
	PaymentDate  time.Time
	TotalAmount  int64
	Memo         string
	RegisteredBy string
	CreatedAt    time.Time

	// AllocationCount is populated by list queries.
	AllocationCount int64
}

// Allocation is the portion of one payment applied to one document.
type Allocation struct {
	ID            uuid.UUID
	PaymentID     uuid.UUID
	DocumentID    uuid.UUID
	AppliedAmount int64
	CreatedAt     time.Time
}

// AllocationDetail joins an allocation with its target document.
type AllocationDetail struct {
	DocumentID    uuid.UUID
	Folio         int64
	DocumentType  document.Type
	Counterparty  string
	ClientName    *string
	AppliedAmount int64
	BalanceDue    int64
	State         document.State
	AppliedAt     time.Time
}

// Detail is a payment with its full distribution.
type Detail struct {
	Payment     *Payment
	Allocations []AllocationDetail
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}

	return n
}
