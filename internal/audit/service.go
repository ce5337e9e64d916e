package audit

import "context"

type Repository interface {
	ListEntries(ctx context.Context, filter ListFilter) ([]*Entry, error)
}

// Service is the read side of the audit log. Writes happen through
// store.Record inside the mutating transaction that owns them.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, filter)
}
