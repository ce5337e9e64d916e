package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/payment"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListPayments(ctx context.Context, limit, offset int) ([]*payment.Payment, error) {
	query := `
		SELECT p.id, p.payment_date, p.total_amount, p.memo, p.registered_by, p.created_at,
		       COUNT(pa.id) AS allocation_count
		FROM payments p
		LEFT JOIN payment_allocations pa ON p.id = pa.payment_id
		GROUP BY p.id
		ORDER BY p.payment_date DESC, p.created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment

	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(
			&p.ID, &p.PaymentDate, &p.TotalAmount, &p.Memo, &p.RegisteredBy, &p.CreatedAt,
			&p.AllocationCount,
		); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payment rows: %w", err)
	}

	return payments, nil
}

func (s *Store) GetPaymentDetail(ctx context.Context, id uuid.UUID) (*payment.Detail, error) {
	query := `
		SELECT id, payment_date, total_amount, memo, registered_by, created_at
		FROM payments
		WHERE id = $1
	`

	var p payment.Payment
	if err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.PaymentDate, &p.TotalAmount, &p.Memo, &p.RegisteredBy, &p.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	allocs, err := s.listAllocationDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	p.AllocationCount = int64(len(allocs))

	return &payment.Detail{Payment: &p, Allocations: allocs}, nil
}

func (s *Store) listAllocationDetails(ctx context.Context, paymentID uuid.UUID) ([]payment.AllocationDetail, error) {
	query := `
		SELECT d.id, d.folio, d.type, d.counterparty, c.name,
		       pa.applied_amount, d.balance_due, d.state, pa.created_at
		FROM payment_allocations pa
		JOIN documents d ON pa.document_id = d.id
		LEFT JOIN clients c ON d.client_id = c.id
		WHERE pa.payment_id = $1
		ORDER BY d.folio ASC
	`

	rows, err := s.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("listing allocation details: %w", err)
	}
	defer rows.Close()

	var details []payment.AllocationDetail

	for rows.Next() {
		var det payment.AllocationDetail

		var clientName sql.NullString

		var typeStr, stateStr string

		if err := rows.Scan(
			&det.DocumentID, &det.Folio, &typeStr, &det.Counterparty, &clientName,
			&det.AppliedAmount, &det.BalanceDue, &stateStr, &det.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning allocation detail: %w", err)
		}

		det.DocumentType = document.Type(typeStr)
		det.State = document.State(stateStr)

		if clientName.Valid {
			det.ClientName = &clientName.String
		}

		details = append(details, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocation rows: %w", err)
	}

	return details, nil
}

func (s *Store) ListPaymentsByDocument(ctx context.Context, documentID uuid.UUID) ([]*payment.Detail, error) {
	query := `
		SELECT DISTINCT p.id
		FROM payment_allocations pa
		JOIN payments p ON pa.payment_id = p.id
		WHERE pa.document_id = $1
		ORDER BY p.id
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing payments by document: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning payment id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payment id rows: %w", err)
	}

	details := make([]*payment.Detail, 0, len(ids))

	for _, id := range ids {
		detail, err := s.GetPaymentDetail(ctx, id)
		if err != nil {
			return nil, err
		}

		details = append(details, detail)
	}

	return details, nil
}
