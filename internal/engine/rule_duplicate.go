package engine

import (
	"github.com/flowbit/invoice-engine/internal/model"
)

// duplicateRule flags the invoice when another stored invoice of the same
// vendor carries the same invoice number with a date inside the duplicate
// window. It runs for every vendor against the same-number invoices recall
// prefetched.
type duplicateRule struct{}

func (duplicateRule) Name() string { return "duplicate_detection" }

func (duplicateRule) Apply(rc *RuleContext) *Application {
	if rc.Fields.Duplicate {
		return nil
	}
	current, err := parseInvoiceDate(rc.Fields.InvoiceDate)
	if err != nil {
		return nil
	}

	window := float64(rc.Cfg.DuplicateWindowDays)
	isDup := false
	for _, other := range rc.Memory.SameNumberInvoices {
		if other.InvoiceID == rc.Invoice.InvoiceID {
			continue
		}
		otherDate, err := parseInvoiceDate(other.Fields.InvoiceDate)
		if err != nil {
			continue
		}
		if daysApart(current, otherDate) <= window {
			isDup = true
			break
		}
	}
	if !isDup {
		return nil
	}
	rc.Fields.Duplicate = true

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedDuplicateFlag,
			Level:  model.LevelVendor,
			Vendor: rc.Invoice.Vendor,
			Key:    "duplicate_detection",
		},
		Description: "Flagged as duplicate invoice based on same vendor, invoice number, and close dates.",
	}
}
