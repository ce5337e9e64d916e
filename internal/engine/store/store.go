package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/institutoandes/cobranza/internal/audit"
	auditstore "github.com/institutoandes/cobranza/internal/audit/store"
	"github.com/institutoandes/cobranza/internal/client"
	"github.com/institutoandes/cobranza/internal/creditnote"
	"github.com/institutoandes/cobranza/internal/document"
	docstore "github.com/institutoandes/cobranza/internal/document/store"
	"github.com/institutoandes/cobranza/internal/engine"
	"github.com/institutoandes/cobranza/internal/payment"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
)

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func New(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// Begin opens a transaction with a bounded lock wait so a stuck
// registration surfaces as a retryable condition instead of hanging.
func (s *Store) Begin(ctx context.Context) (engine.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		tx.Rollback()

		return nil, fmt.Errorf("setting lock timeout: %w", err)
	}

	return &Tx{tx: tx}, nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// asBusy translates lock-wait and deadlock failures into the engine's
// retryable sentinel.
func asBusy(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected {
			return fmt.Errorf("%w: %s", engine.ErrBusy, pgErr.Message)
		}
	}

	return err
}

const selectDocumentFrom = `
	FROM documents d
	LEFT JOIN clients c ON d.client_id = c.id
`

func (t *Tx) InsertDocument(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (
			type, folio, issue_date, counterparty, counterparty_tax_id,
			net_amount, tax_amount, exempt_amount, total_amount,
			reference_folio, reference_type, tax_period, source_file,
			balance_due, state
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`

	var refType *string

	if doc.ReferenceType != nil {
		s := string(*doc.ReferenceType)
		refType = &s
	}

	err := t.tx.QueryRowContext(ctx, query,
		doc.Type, doc.Folio, doc.IssueDate, doc.Counterparty, doc.CounterpartyTaxID,
		doc.NetAmount, doc.TaxAmount, doc.ExemptAmount, doc.TotalAmount,
		doc.ReferenceFolio, refType, doc.TaxPeriod, doc.SourceFile,
		doc.BalanceDue, doc.State,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%s folio %d: %w", doc.Type, doc.Folio, document.ErrDuplicate)
		}

		return fmt.Errorf("inserting document: %w", err)
	}

	return nil
}

func (t *Tx) GetDocumentByFolio(ctx context.Context, docType document.Type, folio int64) (*document.Document, error) {
	query := `SELECT ` + docstore.SelectDocumentColumns + selectDocumentFrom + `WHERE d.type = $1 AND d.folio = $2`

	doc, err := docstore.ScanDocument(t.tx.QueryRowContext(ctx, query, docType, folio))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting document by folio: %w", err)
	}

	return doc, nil
}

// LockDocument loads a document under FOR UPDATE so concurrent commands
// against the same invoice serialize.
func (t *Tx) LockDocument(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	query := `SELECT ` + docstore.SelectDocumentColumns + selectDocumentFrom + `WHERE d.id = $1 FOR UPDATE OF d`

	doc, err := docstore.ScanDocument(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("locking document: %w", asBusy(err))
	}

	return doc, nil
}

func (t *Tx) ListCreditNotes(ctx context.Context) ([]*document.Document, error) {
	query := `SELECT ` + docstore.SelectDocumentColumns + selectDocumentFrom + `
		WHERE d.type = $1
		ORDER BY d.issue_date ASC, d.folio ASC`

	rows, err := t.tx.QueryContext(ctx, query, document.TypeCreditNote)
	if err != nil {
		return nil, fmt.Errorf("listing credit notes: %w", err)
	}
	defer rows.Close()

	var notes []*document.Document

	for rows.Next() {
		note, err := docstore.ScanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credit note: %w", err)
		}

		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credit note rows: %w", err)
	}

	return notes, nil
}

func (t *Tx) GetCreditApplication(ctx context.Context, noteID uuid.UUID) (*creditnote.Application, error) {
	query := `
		SELECT id, note_id, invoice_id, applied_amount, created_at
		FROM credit_applications
		WHERE note_id = $1
	`

	var app creditnote.Application
	if err := t.tx.QueryRowContext(ctx, query, noteID).Scan(
		&app.ID, &app.NoteID, &app.InvoiceID, &app.AppliedAmount, &app.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, creditnote.ErrNoApplication
		}

		return nil, fmt.Errorf("getting credit application: %w", err)
	}

	return &app, nil
}

func (t *Tx) CreateCreditApplication(ctx context.Context, app *creditnote.Application) error {
	query := `
		INSERT INTO credit_applications (note_id, invoice_id, applied_amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := t.tx.QueryRowContext(ctx, query,
		app.NoteID, app.InvoiceID, app.AppliedAmount,
	).Scan(&app.ID, &app.CreatedAt); err != nil {
		return fmt.Errorf("creating credit application: %w", err)
	}

	return nil
}

// AppliedTotals sums what payments and credit notes have consumed of one
// document. The sums are the source of truth the derived balance is
// recomputed from.
func (t *Tx) AppliedTotals(ctx context.Context, documentID uuid.UUID) (payments, credits int64, err error) {
	query := `
		SELECT
			COALESCE((SELECT SUM(applied_amount) FROM payment_allocations WHERE document_id = $1), 0),
			COALESCE((SELECT SUM(applied_amount) FROM credit_applications WHERE invoice_id = $1), 0)
	`

	if err := t.tx.QueryRowContext(ctx, query, documentID).Scan(&payments, &credits); err != nil {
		return 0, 0, fmt.Errorf("summing applied amounts: %w", err)
	}

	return payments, credits, nil
}

func (t *Tx) SetDocumentBalance(ctx context.Context, id uuid.UUID, balance int64, state document.State) error {
	query := `UPDATE documents SET balance_due = $2, state = $3, updated_at = NOW() WHERE id = $1`

	if _, err := t.tx.ExecContext(ctx, query, id, balance, state); err != nil {
		return fmt.Errorf("updating document balance: %w", err)
	}

	return nil
}

func (t *Tx) SetDocumentState(ctx context.Context, id uuid.UUID, state document.State) error {
	query := `UPDATE documents SET state = $2, updated_at = NOW() WHERE id = $1`

	if _, err := t.tx.ExecContext(ctx, query, id, state); err != nil {
		return fmt.Errorf("updating document state: %w", err)
	}

	return nil
}

func (t *Tx) AssignDocument(ctx context.Context, id uuid.UUID, clientID *uuid.UUID, course *string) error {
	query := `UPDATE documents SET client_id = $2, course_label = $3, updated_at = NOW() WHERE id = $1`

	if _, err := t.tx.ExecContext(ctx, query, id, clientID, course); err != nil {
		return fmt.Errorf("assigning document: %w", err)
	}

	return nil
}

func (t *Tx) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `
		SELECT id, payment_date, total_amount, memo, registered_by, created_at
		FROM payments
		WHERE id = $1
	`

	var p payment.Payment
	if err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.PaymentDate, &p.TotalAmount, &p.Memo, &p.RegisteredBy, &p.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return &p, nil
}

func (t *Tx) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]*payment.Allocation, error) {
	query := `
		SELECT id, payment_id, document_id, applied_amount, created_at
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY created_at ASC
	`

	rows, err := t.tx.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*payment.Allocation

	for rows.Next() {
		var a payment.Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.DocumentID, &a.AppliedAmount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}

		allocs = append(allocs, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocation rows: %w", err)
	}

	return allocs, nil
}

func (t *Tx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (payment_date, total_amount, memo, registered_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := t.tx.QueryRowContext(ctx, query,
		p.PaymentDate, p.TotalAmount, p.Memo, p.RegisteredBy,
	).Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}

	return nil
}

func (t *Tx) CreateAllocation(ctx context.Context, a *payment.Allocation) error {
	query := `
		INSERT INTO payment_allocations (payment_id, document_id, applied_amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := t.tx.QueryRowContext(ctx, query,
		a.PaymentID, a.DocumentID, a.AppliedAmount,
	).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("creating allocation: %w", err)
	}

	return nil
}

func (t *Tx) DeletePayment(ctx context.Context, id uuid.UUID) error {
	// Allocations go with it via ON DELETE CASCADE.
	res, err := t.tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}

	if affected == 0 {
		return payment.ErrNotFound
	}

	return nil
}

func (t *Tx) GetClient(ctx context.Context, id uuid.UUID) (*client.Client, error) {
	query := `SELECT id, name, search_key, merged_into FROM clients WHERE id = $1`

	var c client.Client
	if err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.SearchKey, &c.MergedInto,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, client.ErrNotFound
		}

		return nil, fmt.Errorf("getting client: %w", err)
	}

	return &c, nil
}

func (t *Tx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return auditstore.Record(ctx, t.tx, entry)
}
