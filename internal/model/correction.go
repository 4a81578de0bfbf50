package model

// FinalDecision is the outcome of a human review.
type FinalDecision string

const (
	DecisionApproved FinalDecision = "approved"
	DecisionRejected FinalDecision = "rejected"
)

// FieldCorrection is one field-level change a reviewer made.
type FieldCorrection struct {
	Field  string `json:"field" yaml:"field"`
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Reason string `json:"reason" yaml:"reason"`
}

// HumanCorrection is the record an external review process leaves behind for
// an invoice. At most one exists per invoice; the pipeline only reads it.
type HumanCorrection struct {
	InvoiceID     string            `json:"invoice_id" yaml:"invoice_id"`
	Vendor        string            `json:"vendor" yaml:"vendor"`
	Corrections   []FieldCorrection `json:"corrections" yaml:"corrections"`
	FinalDecision FinalDecision     `json:"final_decision" yaml:"final_decision"`
}

// Approved reports whether the reviewer approved the corrected invoice.
func (h *HumanCorrection) Approved() bool {
	return h.FinalDecision == DecisionApproved
}
