package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// SelectDocumentColumns is the column list ScanDocument expects, with the
// documents table aliased d and clients aliased c. Shared with the engine
// store.
const SelectDocumentColumns = `
	d.id, d.type, d.folio, d.issue_date, d.counterparty, d.counterparty_tax_id,
	d.net_amount, d.tax_amount, d.exempt_amount, d.total_amount,
	d.reference_folio, d.reference_type, d.tax_period, d.source_file,
	d.client_id, c.name AS client_name, d.course_label,
	d.balance_due, d.state, d.created_at, d.updated_at
`

// ScanDocument reads one document row in SelectDocumentColumns order. It is
// exported for the engine store, which persists documents but reuses this
// mapping.
func ScanDocument(s scanner) (*document.Document, error) {
	var doc document.Document

	var (
		typeStr, stateStr  string
		refFolio           sql.NullInt64
		refType            sql.NullString
		clientID           *uuid.UUID
		clientName, course sql.NullString
	)

	if err := s.Scan(
		&doc.ID, &typeStr, &doc.Folio, &doc.IssueDate, &doc.Counterparty, &doc.CounterpartyTaxID,
		&doc.NetAmount, &doc.TaxAmount, &doc.ExemptAmount, &doc.TotalAmount,
		&refFolio, &refType, &doc.TaxPeriod, &doc.SourceFile,
		&clientID, &clientName, &course,
		&doc.BalanceDue, &stateStr, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	doc.Type = document.Type(typeStr)
	doc.State = document.State(stateStr)
	doc.ClientID = clientID

	if refFolio.Valid {
		doc.ReferenceFolio = &refFolio.Int64
	}

	if refType.Valid {
		t := document.Type(refType.String)
		doc.ReferenceType = &t
	}

	if clientName.Valid {
		doc.ClientName = &clientName.String
	}

	if course.Valid {
		doc.CourseLabel = &course.String
	}

	return &doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	query := `SELECT ` + SelectDocumentColumns + `
		FROM documents d
		LEFT JOIN clients c ON d.client_id = c.id
		WHERE d.id = $1`

	doc, err := ScanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting document: %w", err)
	}

	return doc, nil
}

func (s *Store) GetDocumentByFolio(ctx context.Context, docType document.Type, folio int64) (*document.Document, error) {
	query := `SELECT ` + SelectDocumentColumns + `
		FROM documents d
		LEFT JOIN clients c ON d.client_id = c.id
		WHERE d.type = $1 AND d.folio = $2`

	doc, err := ScanDocument(s.db.QueryRowContext(ctx, query, docType, folio))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting document by folio: %w", err)
	}

	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, filter document.ListFilter) ([]*document.Document, error) {
	query := `SELECT ` + SelectDocumentColumns + `
		FROM documents d
		LEFT JOIN clients c ON d.client_id = c.id
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Type != nil {
		query += fmt.Sprintf(" AND d.type = $%d", argIdx)

		args = append(args, *filter.Type)
		argIdx++
	}

	if filter.State != nil {
		query += fmt.Sprintf(" AND d.state = $%d", argIdx)

		args = append(args, *filter.State)
		argIdx++
	}

	if filter.TaxPeriod != nil {
		query += fmt.Sprintf(" AND d.tax_period = $%d", argIdx)

		args = append(args, *filter.TaxPeriod)
		argIdx++
	}

	if filter.ClientID != nil {
		query += fmt.Sprintf(" AND d.client_id = $%d", argIdx)

		args = append(args, *filter.ClientID)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND d.issue_date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND d.issue_date <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY d.issue_date ASC, d.folio ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document

	for rows.Next() {
		doc, err := ScanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return docs, nil
}

func (s *Store) ListUnmatchedCreditNotes(ctx context.Context) ([]*document.Document, error) {
	query := `SELECT ` + SelectDocumentColumns + `
		FROM documents d
		LEFT JOIN clients c ON d.client_id = c.id
		WHERE d.type = $1 AND d.state = $2
		ORDER BY d.issue_date DESC`

	rows, err := s.db.QueryContext(ctx, query, document.TypeCreditNote, document.StateUnmatched)
	if err != nil {
		return nil, fmt.Errorf("listing unmatched credit notes: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document

	for rows.Next() {
		doc, err := ScanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credit note: %w", err)
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credit note rows: %w", err)
	}

	return docs, nil
}

func (s *Store) GetHistory(ctx context.Context, id uuid.UUID) (*document.Detail, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &document.Detail{Document: doc}

	allocQuery := `
		SELECT p.id, p.payment_date, pa.applied_amount, p.memo, p.registered_by, pa.created_at
		FROM payment_allocations pa
		JOIN payments p ON pa.payment_id = p.id
		WHERE pa.document_id = $1
		ORDER BY p.payment_date ASC, pa.created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, allocQuery, id)
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec document.AllocationRecord
		if err := rows.Scan(
			&rec.PaymentID, &rec.PaymentDate, &rec.AppliedAmount,
			&rec.Memo, &rec.RegisteredBy, &rec.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}

		detail.Allocations = append(detail.Allocations, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocation rows: %w", err)
	}

	creditQuery := `
		SELECT n.id, n.folio, n.total_amount, ca.applied_amount, ca.created_at
		FROM credit_applications ca
		JOIN documents n ON ca.note_id = n.id
		WHERE ca.invoice_id = $1
		ORDER BY ca.created_at ASC
	`

	creditRows, err := s.db.QueryContext(ctx, creditQuery, id)
	if err != nil {
		return nil, fmt.Errorf("listing credit applications: %w", err)
	}
	defer creditRows.Close()

	for creditRows.Next() {
		var rec document.CreditRecord
		if err := creditRows.Scan(
			&rec.NoteID, &rec.NoteFolio, &rec.NoteTotal, &rec.AppliedAmount, &rec.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning credit application: %w", err)
		}

		detail.Credits = append(detail.Credits, rec)
	}

	if err := creditRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credit application rows: %w", err)
	}

	return detail, nil
}
