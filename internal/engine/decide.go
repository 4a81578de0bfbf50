package engine

import (
	"fmt"
	"strings"

	"github.com/flowbit/invoice-engine/internal/model"
)

// Decision is the outcome of the confidence computation for one invoice.
type Decision struct {
	RequiresHumanReview bool    `json:"requires_human_review"`
	ConfidenceScore     float64 `json:"confidence_score"`
	Reasoning           string  `json:"reasoning"`
}

// decide is a pure function of the base extraction confidence, the number of
// rules that fired, and the number of high-confidence correction memories in
// context: confidence = min(1, base + ruleBoost·applied + memoryBoost·highConf).
// Anything under the auto-approve threshold goes to human review.
func (e *Engine) decide(inv *model.Invoice, memory *model.MemoryContext, applied []model.AppliedMemory) (Decision, []model.AuditEntry) {
	highConf := memory.HighConfidenceCount(e.cfg.HighConfidenceMin)

	confidence := inv.Confidence +
		e.cfg.RuleBoost*float64(len(applied)) +
		e.cfg.MemoryBoost*float64(highConf)
	if confidence > 1 {
		confidence = 1
	}

	d := Decision{
		RequiresHumanReview: confidence < e.cfg.AutoApproveThreshold,
		ConfidenceScore:     confidence,
	}

	var parts []string
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Applied %d learned correction rule(s).", len(applied)))
	}
	parts = append(parts, fmt.Sprintf(
		"Base extraction confidence: %.2f; final confidence: %.2f.",
		inv.Confidence, confidence,
	))
	d.Reasoning = strings.Join(parts, " ")

	audit := []model.AuditEntry{model.NewAuditEntry(model.StepDecide, fmt.Sprintf(
		"requires_human_review=%t, confidence_score=%.2f",
		d.RequiresHumanReview, d.ConfidenceScore,
	))}
	return d, audit
}
