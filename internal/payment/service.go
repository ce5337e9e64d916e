package payment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	ListPayments(ctx context.Context, limit, offset int) ([]*Payment, error)
	GetPaymentDetail(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListPaymentsByDocument(ctx context.Context, documentID uuid.UUID) ([]*Detail, error)
}

// Service is the read side of payments. Registration and voiding go
// through the reconciliation engine.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if offset < 0 {
		offset = 0
	}

	return s.repo.ListPayments(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return s.repo.GetPaymentDetail(ctx, id)
}

func (s *Service) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Detail, error) {
	return s.repo.ListPaymentsByDocument(ctx, documentID)
}
