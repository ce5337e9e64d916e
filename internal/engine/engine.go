// Package engine is the single entry point for every state-changing
// command. Each command runs as one atomic unit: validation happens before
// any mutation, and the audit entry commits with the mutation or not at
// all.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/client"
	"github.com/institutoandes/cobranza/internal/creditnote"
	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/governance"
	"github.com/institutoandes/cobranza/internal/payment"
)

// ErrBusy means a row lock could not be acquired within the configured
// timeout. The command was not applied; callers retry with backoff.
var ErrBusy = errors.New("documents busy, retry later")

// Tx is one open transaction against the persistent store. It carries the
// slices the matcher and the allocator operate on plus the engine's own
// operations.
type Tx interface {
	creditnote.Ledger
	payment.Ledger

	InsertDocument(ctx context.Context, doc *document.Document) error
	AssignDocument(ctx context.Context, id uuid.UUID, clientID *uuid.UUID, course *string) error
	GetClient(ctx context.Context, id uuid.UUID) (*client.Client, error)

	Commit() error
	Rollback() error
}

type Repository interface {
	Begin(ctx context.Context) (Tx, error)
}

type Service struct {
	repo      Repository
	gov       governance.Policy
	matcher   *creditnote.Matcher
	allocator *payment.Allocator
}

func NewService(repo Repository, gov governance.Policy) *Service {
	return &Service{
		repo:      repo,
		gov:       gov,
		matcher:   creditnote.NewMatcher(gov),
		allocator: payment.NewAllocator(gov),
	}
}

// ImportSummary reports the outcome of one batch import back to the
// ingestion collaborator.
type ImportSummary struct {
	Inserted             int
	DuplicatesSkipped    int
	AppliedCreditNotes   int
	UnmatchedCreditNotes int
}

// ImportBatch inserts already-parsed documents, then runs the credit-note
// matcher over the stored notes. Each insert is its own transaction, so a
// duplicate is reported without aborting the rest of the batch.
func (s *Service) ImportBatch(ctx context.Context, params []document.ImportParams, actor audit.Actor) (*ImportSummary, error) {
	summary := &ImportSummary{}

	for _, p := range params {
		inserted, err := s.importOne(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("importing folio %d: %w", p.Folio, err)
		}

		if inserted {
			summary.Inserted++
		} else {
			summary.DuplicatesSkipped++
		}
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	matched, err := s.matcher.ApplyAll(ctx, tx, actor)
	if err != nil {
		return nil, err
	}

	summary.AppliedCreditNotes = matched.Applied
	summary.UnmatchedCreditNotes = matched.Unmatched()

	detail := fmt.Sprintf("imported %d documents (%d duplicates skipped), %d credit notes applied, %d unmatched",
		summary.Inserted, summary.DuplicatesSkipped, summary.AppliedCreditNotes, summary.UnmatchedCreditNotes)

	if err := tx.RecordAudit(ctx, actor.Entry(audit.ActionImportBatch, detail)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing credit note matching: %w", err)
	}

	slog.Info("batch imported",
		"inserted", summary.Inserted, "duplicates", summary.DuplicatesSkipped,
		"notes_applied", summary.AppliedCreditNotes, "notes_unmatched", summary.UnmatchedCreditNotes)

	return summary, nil
}

func (s *Service) importOne(ctx context.Context, p document.ImportParams) (bool, error) {
	doc := p.Document()

	// Initial lifecycle: credit notes wait for the matcher; historical
	// invoices import settled; everything else starts pending with the
	// full amount due.
	switch {
	case doc.Type == document.TypeCreditNote:
		doc.State = document.StateUnmatched
		doc.BalanceDue = 0
	case !s.gov.Covers(doc.IssueDate):
		doc.State = document.StatePaid
		doc.BalanceDue = 0
	default:
		doc.BalanceDue, doc.State = document.Derive(doc.TotalAmount, 0, 0)
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := tx.InsertDocument(ctx, doc); err != nil {
		if errors.Is(err, document.ErrDuplicate) {
			return false, nil
		}

		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing document: %w", err)
	}

	return true, nil
}

// RegisterPayment records one bank receipt and its distribution across
// outstanding invoices as a single atomic unit.
func (s *Service) RegisterPayment(ctx context.Context, params payment.RegisterParams, actor audit.Actor) (*payment.Payment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := s.allocator.Register(ctx, tx, params, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing payment: %w", err)
	}

	return p, nil
}

// VoidPayment is the correction path for a wrongly distributed payment:
// the whole payment is reversed and a new one can be registered.
func (s *Service) VoidPayment(ctx context.Context, paymentID uuid.UUID, actor audit.Actor) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.allocator.Void(ctx, tx, paymentID, actor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing payment void: %w", err)
	}

	return nil
}

// AssignParams carries the optional assignment fields; nil leaves a field
// unchanged.
type AssignParams struct {
	ClientID    *uuid.UUID
	CourseLabel *string
}

// AssignClientAndCourse links a document to a real client and/or a course
// label. Only documents under active governance accept assignment, and
// credit notes never do.
func (s *Service) AssignClientAndCourse(ctx context.Context, docID uuid.UUID, params AssignParams, actor audit.Actor) (*document.Document, error) {
	if params.ClientID == nil && params.CourseLabel == nil {
		return nil, errors.New("nothing to assign")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	doc, err := tx.LockDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if doc.Type == document.TypeCreditNote {
		return nil, document.ErrNotAssignable
	}

	if !s.gov.Covers(doc.IssueDate) {
		return nil, &document.GovernanceError{Folio: doc.Folio, IssueDate: doc.IssueDate}
	}

	var changes []string

	if params.ClientID != nil {
		c, err := tx.GetClient(ctx, *params.ClientID)
		if err != nil {
			return nil, err
		}

		if c.Merged() {
			return nil, client.ErrMerged
		}

		doc.ClientID = params.ClientID
		doc.ClientName = &c.Name
		changes = append(changes, fmt.Sprintf("client %q (id=%s)", c.Name, c.ID))
	}

	if params.CourseLabel != nil {
		course := strings.TrimSpace(*params.CourseLabel)
		// Cap by runes so an accented character at the boundary stays whole.
		if r := []rune(course); len(r) > 300 {
			course = string(r[:300])
		}

		if course == "" {
			doc.CourseLabel = nil
		} else {
			doc.CourseLabel = &course
		}

		changes = append(changes, fmt.Sprintf("course %q", course))
	}

	if err := tx.AssignDocument(ctx, doc.ID, doc.ClientID, doc.CourseLabel); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("folio %d assigned: %s", doc.Folio, strings.Join(changes, ", "))
	if err := tx.RecordAudit(ctx, actor.Entry(audit.ActionAssignDocument, detail)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}

	return doc, nil
}
