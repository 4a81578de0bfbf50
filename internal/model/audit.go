package model

import "time"

// AuditStep tags which pipeline stage produced an audit entry.
type AuditStep string

const (
	StepRecall AuditStep = "recall"
	StepApply  AuditStep = "apply"
	StepDecide AuditStep = "decide"
	StepLearn  AuditStep = "learn"
)

// AuditEntry is one line of the append-only rationale trail. Entries for a
// single invocation are strictly ordered recall, apply, decide, learn.
type AuditEntry struct {
	Step      AuditStep `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// NewAuditEntry stamps an entry with the current UTC time.
func NewAuditEntry(step AuditStep, details string) AuditEntry {
	return AuditEntry{Step: step, Timestamp: time.Now().UTC(), Details: details}
}
