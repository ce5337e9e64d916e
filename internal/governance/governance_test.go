package governance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/institutoandes/cobranza/internal/governance"
)

func TestPolicyCovers(t *testing.T) {
	cutover := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := governance.NewPolicy(cutover)

	assert.False(t, policy.Covers(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, policy.Covers(cutover))
	assert.True(t, policy.Covers(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
}
