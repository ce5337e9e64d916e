package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/audit"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=client
type Repository interface {
	CreateClient(ctx context.Context, c *Client, entry audit.Entry) error
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	GetClientBySearchKey(ctx context.Context, key string) (*Client, error)
	ListActiveClients(ctx context.Context) ([]*Client, error)
	SearchClients(ctx context.Context, words []string, limit int) ([]*Client, error)
	GetClientStats(ctx context.Context, id uuid.UUID) (*Stats, error)
	UpdateClient(ctx context.Context, c *Client, entry audit.Entry) error
	MergeClients(ctx context.Context, survivorID, absorbedID uuid.UUID, entry audit.Entry) (int64, error)
}

type Service struct {
	repo         Repository
	scorer       Scorer
	threshold    float64
	suggestLimit int
}

func NewService(repo Repository, scorer Scorer, threshold float64, suggestLimit int) *Service {
	if suggestLimit <= 0 {
		suggestLimit = 5
	}

	return &Service{
		repo:         repo,
		scorer:       scorer,
		threshold:    threshold,
		suggestLimit: suggestLimit,
	}
}

type CreateParams struct {
	Name    string
	TaxID   string
	Contact string
	Email   string
	Phone   string
	// Force skips the near-duplicate check. An exact search-key match is
	// still rejected.
	Force bool
}

type UpdateParams struct {
	Name    *string
	TaxID   *string
	Contact *string
	Email   *string
	Phone   *string
}

// FindOrSuggest resolves a raw name to an exact registry hit plus ranked
// near-duplicate candidates above the configured threshold.
func (s *Service) FindOrSuggest(ctx context.Context, raw string) (*Match, error) {
	_, key := Normalize(raw)
	if key == "" {
		return &Match{}, nil
	}

	match := &Match{}

	exact, err := s.repo.GetClientBySearchKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	match.Exact = exact

	suggestions, err := s.suggest(ctx, key, exact)
	if err != nil {
		return nil, err
	}

	match.Suggestions = suggestions

	return match, nil
}

func (s *Service) suggest(ctx context.Context, key string, exclude *Client) ([]Suggestion, error) {
	candidates, err := s.repo.ListActiveClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	var suggestions []Suggestion

	for _, c := range candidates {
		if exclude != nil && c.ID == exclude.ID {
			continue
		}

		score := s.scorer.Score(key, c.SearchKey)
		if score < s.threshold {
			continue
		}

		suggestions = append(suggestions, Suggestion{Client: c, Score: score})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}

		return suggestions[i].Client.Name < suggestions[j].Client.Name
	})

	if len(suggestions) > s.suggestLimit {
		suggestions = suggestions[:s.suggestLimit]
	}

	return suggestions, nil
}

func (s *Service) Create(ctx context.Context, params CreateParams, actor audit.Actor) (*Client, error) {
	canonical, key := Normalize(params.Name)
	if key == "" {
		return nil, errors.New("client name is required")
	}

	existing, err := s.repo.GetClientBySearchKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		return nil, &DuplicateClientError{Existing: existing}
	}

	if !params.Force {
		suggestions, err := s.suggest(ctx, key, nil)
		if err != nil {
			return nil, err
		}

		if len(suggestions) > 0 {
			return nil, &NearDuplicateError{Suggestions: suggestions}
		}
	}

	c := &Client{
		Name:      canonical,
		SearchKey: key,
		TaxID:     truncate(params.TaxID, 20),
		Contact:   truncate(params.Contact, 200),
		Email:     truncate(params.Email, 200),
		Phone:     truncate(params.Phone, 50),
		CreatedBy: actor.Name,
	}

	entry := actor.Entry(audit.ActionCreateClient, fmt.Sprintf("client created: %q", canonical))
	if err := s.repo.CreateClient(ctx, c, entry); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams, actor audit.Actor) (*Client, error) {
	c, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.Merged() {
		return nil, ErrMerged
	}

	var changed []string

	if params.Name != nil {
		canonical, key := Normalize(*params.Name)
		if key == "" {
			return nil, errors.New("client name is required")
		}

		if key != c.SearchKey {
			other, err := s.repo.GetClientBySearchKey(ctx, key)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}

			if other != nil {
				return nil, &DuplicateClientError{Existing: other}
			}
		}

		c.Name = canonical
		c.SearchKey = key
		changed = append(changed, "name")
	}

	if params.TaxID != nil {
		c.TaxID = truncate(*params.TaxID, 20)
		changed = append(changed, "tax_id")
	}

	if params.Contact != nil {
		c.Contact = truncate(*params.Contact, 200)
		changed = append(changed, "contact")
	}

	if params.Email != nil {
		c.Email = truncate(*params.Email, 200)
		changed = append(changed, "email")
	}

	if params.Phone != nil {
		c.Phone = truncate(*params.Phone, 50)
		changed = append(changed, "phone")
	}

	if len(changed) == 0 {
		return c, nil
	}

	entry := actor.Entry(audit.ActionUpdateClient,
		fmt.Sprintf("client %s updated, fields: %s", c.ID, strings.Join(changed, ", ")))
	if err := s.repo.UpdateClient(ctx, c, entry); err != nil {
		return nil, err
	}

	return c, nil
}

// Merge reassigns every document of the absorbed client to the survivor
// and marks the absorbed record as merged. The absorbed record is retained
// for audit but cannot be assigned again.
func (s *Service) Merge(ctx context.Context, survivorID, absorbedID uuid.UUID, actor audit.Actor) (int64, error) {
	if survivorID == absorbedID {
		return 0, ErrSameClient
	}

	survivor, err := s.repo.GetClient(ctx, survivorID)
	if err != nil {
		return 0, err
	}

	absorbed, err := s.repo.GetClient(ctx, absorbedID)
	if err != nil {
		return 0, err
	}

	if survivor.Merged() || absorbed.Merged() {
		return 0, ErrMerged
	}

	entry := actor.Entry(audit.ActionMergeClients,
		fmt.Sprintf("merged %q (id=%s) into %q (id=%s)", absorbed.Name, absorbed.ID, survivor.Name, survivor.ID))

	reassigned, err := s.repo.MergeClients(ctx, survivorID, absorbedID, entry)
	if err != nil {
		return 0, err
	}

	return reassigned, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, *Stats, error) {
	c, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	stats, err := s.repo.GetClientStats(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return c, stats, nil
}

// Search is the autocomplete query: clients whose search key contains
// every significant word of the input.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*Client, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	_, key := Normalize(query)

	var words []string

	for _, w := range strings.Fields(key) {
		if len(w) >= 2 {
			words = append(words, w)
		}
	}

	if len(words) == 0 {
		return s.repo.SearchClients(ctx, nil, limit)
	}

	return s.repo.SearchClients(ctx, words, limit)
}

// truncate caps a free-text field by runes so a multi-byte character is
// never cut in half.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}

	return s
}
