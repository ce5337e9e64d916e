package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/institutoandes/cobranza/internal/audit"
)

func TestActorEntry(t *testing.T) {
	actor := audit.Actor{Name: "maria", Origin: "10.0.0.5:52311"}

	entry := actor.Entry(audit.ActionRegisterPayment, "payment of $5000000")

	assert.Equal(t, "maria", entry.Actor)
	assert.Equal(t, audit.ActionRegisterPayment, entry.Action)
	assert.Equal(t, "payment of $5000000", entry.Detail)
	assert.Equal(t, "10.0.0.5:52311", entry.Origin)
}

func TestActorEntry_DefaultsToSystem(t *testing.T) {
	entry := audit.Actor{}.Entry(audit.ActionImportBatch, "imported 120 documents")

	assert.Equal(t, "system", entry.Actor)
}
