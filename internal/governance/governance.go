// Package governance holds the cutover-date policy. Documents issued before
// the cutover are historical: they import as already settled and never
// accept payments, client assignment or course labels.
package governance

import "time"

type Policy struct {
	cutover time.Time
}

func NewPolicy(cutover time.Time) Policy {
	return Policy{cutover: cutover}
}

// Covers reports whether a document issued on the given date falls under
// active collection management.
func (p Policy) Covers(issueDate time.Time) bool {
	return !issueDate.Before(p.cutover)
}

func (p Policy) Cutover() time.Time {
	return p.cutover
}
