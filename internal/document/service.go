package document

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentByFolio(ctx context.Context, docType Type, folio int64) (*Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]*Document, error)
	ListUnmatchedCreditNotes(ctx context.Context) ([]*Document, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*Detail, error)
}

// Service is the read side of the document store. All mutations go through
// the reconciliation engine.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	Type      *Type
	State     *State
	TaxPeriod *string
	ClientID  *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}

// AllocationRecord is one payment applied to a document, joined with the
// payment it belongs to.
type AllocationRecord struct {
	PaymentID     uuid.UUID
	PaymentDate   time.Time
	AppliedAmount int64
	Memo          string
	RegisteredBy  string
	AppliedAt     time.Time
}

// CreditRecord is one credit note applied to a document.
type CreditRecord struct {
	NoteID        uuid.UUID
	NoteFolio     int64
	NoteTotal     int64
	AppliedAmount int64
	AppliedAt     time.Time
}

// Detail is a document together with everything that reduced its balance.
type Detail struct {
	Document    *Document
	Allocations []AllocationRecord
	Credits     []CreditRecord
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) GetByFolio(ctx context.Context, docType Type, folio int64) (*Document, error) {
	return s.repo.GetDocumentByFolio(ctx, docType, folio)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Document, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// ListUnmatched returns credit notes whose referenced invoice was never
// found, pending manual resolution.
func (s *Service) ListUnmatched(ctx context.Context) ([]*Document, error) {
	return s.repo.ListUnmatchedCreditNotes(ctx)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return s.repo.GetHistory(ctx, id)
}
