package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/institutoandes/cobranza/internal/audit"
	auditStore "github.com/institutoandes/cobranza/internal/audit/store"
	"github.com/institutoandes/cobranza/internal/client"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectClientColumns = `
	id, name, search_key, tax_id, contact, email, phone,
	merged_into, created_by, created_at, updated_at
`

func scanClient(s scanner) (*client.Client, error) {
	var c client.Client

	var taxID, contact, email, phone sql.NullString

	var mergedInto *uuid.UUID

	if err := s.Scan(
		&c.ID, &c.Name, &c.SearchKey, &taxID, &contact, &email, &phone,
		&mergedInto, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.TaxID = taxID.String
	c.Contact = contact.String
	c.Email = email.String
	c.Phone = phone.String
	c.MergedInto = mergedInto

	return &c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateClient inserts the client and its audit entry in one transaction.
func (s *Store) CreateClient(ctx context.Context, c *client.Client, entry audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO clients (name, search_key, tax_id, contact, email, phone, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = tx.QueryRowContext(ctx, query,
		c.Name, c.SearchKey,
		nullable(c.TaxID), nullable(c.Contact), nullable(c.Email), nullable(c.Phone),
		c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if existing, getErr := s.GetClientBySearchKey(ctx, c.SearchKey); getErr == nil {
				return &client.DuplicateClientError{Existing: existing}
			}
		}

		return fmt.Errorf("creating client: %w", err)
	}

	if err := auditStore.Record(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing client: %w", err)
	}

	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*client.Client, error) {
	query := `SELECT ` + selectClientColumns + ` FROM clients WHERE id = $1`

	c, err := scanClient(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, client.ErrNotFound
		}

		return nil, fmt.Errorf("getting client: %w", err)
	}

	return c, nil
}

func (s *Store) GetClientBySearchKey(ctx context.Context, key string) (*client.Client, error) {
	query := `SELECT ` + selectClientColumns + ` FROM clients WHERE search_key = $1`

	c, err := scanClient(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, client.ErrNotFound
		}

		return nil, fmt.Errorf("getting client by search key: %w", err)
	}

	return c, nil
}

func (s *Store) ListActiveClients(ctx context.Context) ([]*client.Client, error) {
	query := `SELECT ` + selectClientColumns + `
		FROM clients
		WHERE merged_into IS NULL
		ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

// SearchClients returns clients whose search key contains every given word.
// Words must already be normalized (uppercase, no diacritics).
func (s *Store) SearchClients(ctx context.Context, words []string, limit int) ([]*client.Client, error) {
	query := `SELECT ` + selectClientColumns + `
		FROM clients
		WHERE merged_into IS NULL`

	var args []any

	argIdx := 1

	for _, w := range words {
		query += fmt.Sprintf(" AND search_key LIKE $%d", argIdx)

		args = append(args, "%"+w+"%")
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

func collectClients(rows *sql.Rows) ([]*client.Client, error) {
	var clients []*client.Client

	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}

		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating client rows: %w", err)
	}

	return clients, nil
}

func (s *Store) GetClientStats(ctx context.Context, id uuid.UUID) (*client.Stats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(CASE WHEN state = 'paid' THEN total_amount ELSE 0 END), 0),
		       COALESCE(SUM(balance_due), 0)
		FROM documents
		WHERE client_id = $1 AND type IN ('invoice', 'exempt_invoice')
	`

	var stats client.Stats
	if err := s.db.QueryRowContext(ctx, query, id).Scan(
		&stats.InvoiceCount, &stats.TotalBilled, &stats.TotalPaid, &stats.TotalOutstanding,
	); err != nil {
		return nil, fmt.Errorf("getting client stats: %w", err)
	}

	return &stats, nil
}

// UpdateClient writes the client and its audit entry in one transaction.
func (s *Store) UpdateClient(ctx context.Context, c *client.Client, entry audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE clients
		SET name = $1, search_key = $2, tax_id = $3, contact = $4,
		    email = $5, phone = $6, updated_at = NOW()
		WHERE id = $7 AND merged_into IS NULL
	`

	res, err := tx.ExecContext(ctx, query,
		c.Name, c.SearchKey,
		nullable(c.TaxID), nullable(c.Contact), nullable(c.Email), nullable(c.Phone),
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if existing, getErr := s.GetClientBySearchKey(ctx, c.SearchKey); getErr == nil {
				return &client.DuplicateClientError{Existing: existing}
			}
		}

		return fmt.Errorf("updating client: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return client.ErrNotFound
	}

	if err := auditStore.Record(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing client update: %w", err)
	}

	return nil
}

// MergeClients reassigns the absorbed client's documents to the survivor
// and marks the absorbed record as merged, atomically with the audit entry.
func (s *Store) MergeClients(ctx context.Context, survivorID, absorbedID uuid.UUID, entry audit.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock both rows so concurrent merges of the same pair serialize.
	lockQuery := `SELECT id, merged_into FROM clients WHERE id IN ($1, $2) FOR UPDATE`

	rows, err := tx.QueryContext(ctx, lockQuery, survivorID, absorbedID)
	if err != nil {
		return 0, fmt.Errorf("locking clients: %w", err)
	}

	locked := make(map[uuid.UUID]bool, 2)

	for rows.Next() {
		var (
			id         uuid.UUID
			mergedInto *uuid.UUID
		)

		if err := rows.Scan(&id, &mergedInto); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning locked client: %w", err)
		}

		locked[id] = mergedInto != nil
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating locked clients: %w", err)
	}

	for _, id := range []uuid.UUID{survivorID, absorbedID} {
		merged, ok := locked[id]
		if !ok {
			return 0, client.ErrNotFound
		}

		if merged {
			return 0, client.ErrMerged
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET client_id = $1, updated_at = NOW() WHERE client_id = $2`,
		survivorID, absorbedID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassigning documents: %w", err)
	}

	reassigned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting reassigned documents: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE clients SET merged_into = $1, updated_at = NOW() WHERE id = $2`,
		survivorID, absorbedID,
	); err != nil {
		return 0, fmt.Errorf("marking client merged: %w", err)
	}

	if err := auditStore.Record(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing merge: %w", err)
	}

	return reassigned, nil
}
