package model

// AppliedMemoryKind identifies which correction rule fired. The set is
// closed: one kind per rule in the catalogue.
type AppliedMemoryKind string

const (
	AppliedDateInference    AppliedMemoryKind = "date_inference"
	AppliedPOSuggestion     AppliedMemoryKind = "po_suggestion"
	AppliedTaxRecompute     AppliedMemoryKind = "tax_recompute"
	AppliedCurrencyRecovery AppliedMemoryKind = "currency_recovery"
	AppliedDiscountTerms    AppliedMemoryKind = "discount_terms"
	AppliedSKUMapping       AppliedMemoryKind = "sku_mapping"
	AppliedDuplicateFlag    AppliedMemoryKind = "duplicate_flag"
)

// MemoryLevel distinguishes vendor-level from correction-level applications.
type MemoryLevel string

const (
	LevelVendor     MemoryLevel = "vendor"
	LevelCorrection MemoryLevel = "correction"
)

// AppliedMemory records that a specific rule fired during rule application.
// Correction-level records carry the normalized field name, vendor-level
// records a memory key. Only the count feeds the decision confidence boost.
type AppliedMemory struct {
	Kind   AppliedMemoryKind `json:"kind"`
	Level  MemoryLevel       `json:"level"`
	Vendor string            `json:"vendor"`
	Field  string            `json:"field,omitempty"`
	Key    string            `json:"key,omitempty"`
}

// EngineOutput is the result of one pipeline invocation. It is a return
// value only; nothing here except the audit trail is persisted.
type EngineOutput struct {
	NormalizedFields    InvoiceFields   `json:"normalized_fields"`
	ProposedCorrections []string        `json:"proposed_corrections"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	Reasoning           string          `json:"reasoning"`
	ConfidenceScore     float64         `json:"confidence_score"`
	MemoryUpdates       []string        `json:"memory_updates"`
	AppliedMemories     []AppliedMemory `json:"applied_memories"`
	AuditTrail          []AuditEntry    `json:"audit_trail"`
}
