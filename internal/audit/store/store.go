package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/institutoandes/cobranza/internal/audit"
)

// Querier is the slice of database/sql shared by *sql.DB and *sql.Tx.
// Record takes it instead of a connection so the entry joins whatever
// transaction the mutation runs in.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record appends one audit entry. A failure here must abort the caller's
// transaction: no mutation without its audit trail.
func Record(ctx context.Context, q Querier, e audit.Entry) error {
	query := `
		INSERT INTO audit_log (actor, action, detail, origin)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := q.ExecContext(ctx, query, e.Actor, e.Action, e.Detail, e.Origin); err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}

	return nil
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListEntries(ctx context.Context, filter audit.ListFilter) ([]*audit.Entry, error) {
	query := `SELECT id, at, actor, action, detail, origin FROM audit_log WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argIdx)

		args = append(args, *filter.Action)
		argIdx++
	}

	if filter.Actor != nil {
		query += fmt.Sprintf(" AND actor = $%d", argIdx)

		args = append(args, *filter.Actor)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND at >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND at <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry

	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Action, &e.Detail, &e.Origin); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, nil
}
