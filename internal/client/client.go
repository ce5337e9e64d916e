package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("client not found")
	ErrSameClient = errors.New("survivor and absorbed are the same client")
	// ErrMerged marks an attempt to use a client that was absorbed into
	// another one. Merged clients are retained for audit but are not
	// assignable.
	ErrMerged = errors.New("client was merged into another client")
)

// DuplicateClientError reports an exact search-key collision. It carries
// the existing client so the caller can use its id instead.
type DuplicateClientError struct {
	Existing *Client
}

func (e *DuplicateClientError) Error() string {
	return fmt.Sprintf("client %q already exists (id=%s)", e.Existing.Name, e.Existing.ID)
}

// NearDuplicateError reports similar existing clients found while creating
// a new one without Force. Nothing was created.
type NearDuplicateError struct {
	Suggestions []Suggestion
}

func (e *NearDuplicateError) Error() string {
	if len(e.Suggestions) == 0 {
		return "similar clients exist"
	}

	return fmt.Sprintf("found %d similar clients, did you mean %q?",
		len(e.Suggestions), e.Suggestions[0].Client.Name)
}

// Client is a normalized real-world buyer, distinct from the OTIC
// counterparty invoices are issued to.
type Client struct {
	ID         uuid.UUID
	Name       string // canonical, title-cased
	SearchKey  string // uppercase, diacritics stripped, whitespace collapsed
	TaxID      string
	Contact    string
	Email      string
	Phone      string
	MergedInto *uuid.UUID
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// Merged reports whether this record was absorbed into another client.
func (c *Client) Merged() bool {
	return c.MergedInto != nil
}

// Stats are the billing totals of one client across its documents.
type Stats struct {
	InvoiceCount     int64
	TotalBilled      int64
	TotalPaid        int64
	TotalOutstanding int64
}

// Suggestion is a ranked near-duplicate candidate.
type Suggestion struct {
	Client *Client
	Score  float64
}

// Match is the result of looking a raw name up in the registry.
type Match struct {
	Exact       *Client
	Suggestions []Suggestion
}
