// Package audit is the append-only trail of every state-changing command.
// Entries are written with the same transaction as the mutation they
// describe, so a mutation can never land without its audit record.
package audit

import "time"

const (
	ActionImportBatch     = "import_batch"
	ActionRegisterPayment = "register_payment"
	ActionVoidPayment     = "void_payment"
	ActionApplyCreditNote = "apply_credit_note"
	ActionAssignDocument  = "assign_client_course"
	ActionCreateClient    = "create_client"
	ActionUpdateClient    = "update_client"
	ActionMergeClients    = "merge_clients"
)

// Actor identifies who issued a command and from where.
type Actor struct {
	Name   string
	Origin string
}

// Entry builds an audit entry for this actor.
func (a Actor) Entry(action, detail string) Entry {
	name := a.Name
	if name == "" {
		name = "system"
	}

	return Entry{Actor: name, Action: action, Detail: detail, Origin: a.Origin}
}

type Entry struct {
	ID     int64
	At     time.Time
	Actor  string
	Action string
	Detail string
	Origin string
}

type ListFilter struct {
	Action    *string
	Actor     *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}
