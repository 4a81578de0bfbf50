package model

import "time"

// VendorMemory is a qualitative, unscored learned fact about a vendor's
// document conventions, keyed by vendor+key. The pipeline only reads these.
type VendorMemory struct {
	ID     string            `json:"id" yaml:"id,omitempty"`
	Vendor string            `json:"vendor" yaml:"vendor"`
	Key    string            `json:"key" yaml:"key"`
	Data   map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
}

// CorrectionMemory is a scored learned correction for a specific vendor+field
// pair. The store holds at most one row per (vendor, field); confidence stays
// in [0,1] and is moved by human feedback.
type CorrectionMemory struct {
	ID             string    `json:"id"`
	Vendor         string    `json:"vendor"`
	Field          string    `json:"field"`
	Pattern        string    `json:"pattern"`
	SuggestedValue string    `json:"suggested_value"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MemoryContext is everything Recall gathers for one invoice: the vendor's
// learned memories plus the two document lookups the rules need. It is
// computed once and passed immutably into rule application so that rule
// bodies stay free of I/O.
type MemoryContext struct {
	VendorMemories     []VendorMemory
	CorrectionMemories []CorrectionMemory
	PurchaseOrders     []PurchaseOrder
	SameNumberInvoices []Invoice
}

// HighConfidenceCount returns how many correction memories in context meet
// the given confidence floor.
func (c *MemoryContext) HighConfidenceCount(min float64) int {
	n := 0
	for _, m := range c.CorrectionMemories {
		if m.Confidence >= min {
			n++
		}
	}
	return n
}
