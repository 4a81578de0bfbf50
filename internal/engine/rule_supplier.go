package engine

import (
	"fmt"
	"regexp"
	"time"

	"github.com/flowbit/invoice-engine/internal/model"
)

// Supplier GmbH invoices label the service date in the body text instead of
// a structured field, and routinely omit the purchase-order reference.

var serviceDatePattern = regexp.MustCompile(`Leistungsdatum:\s*([0-9.]+)`)

// serviceDateRule infers a missing service date from a labeled date token in
// the raw text, converting day.month.year to ISO.
type serviceDateRule struct{}

func (serviceDateRule) Name() string { return "service_date_inference" }

func (serviceDateRule) Apply(rc *RuleContext) *Application {
	if rc.Fields.ServiceDate != "" {
		return nil
	}
	m := serviceDatePattern.FindStringSubmatch(rc.Invoice.RawText)
	if m == nil {
		return nil
	}
	t, err := time.Parse("2.1.2006", m[1])
	if err != nil {
		// Malformed token: the rule simply does not fire.
		return nil
	}
	iso := t.Format("2006-01-02")
	rc.Fields.ServiceDate = iso

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedDateInference,
			Level:  model.LevelVendor,
			Vendor: rc.Invoice.Vendor,
			Key:    "service_date_from_leistungsdatum",
		},
		Description: fmt.Sprintf(
			"Set service_date to %s based on label \"Leistungsdatum\" in raw text for %s.",
			iso, rc.Invoice.Vendor,
		),
	}
}

// poSuggestionRule fills a missing purchase-order number when exactly one of
// the vendor's purchase orders falls within the match window of the invoice
// date and shares at least one SKU with the invoice line items. Zero or
// several candidates leave the field untouched.
type poSuggestionRule struct{}

func (poSuggestionRule) Name() string { return "po_suggestion" }

func (poSuggestionRule) Apply(rc *RuleContext) *Application {
	if rc.Fields.PONumber != "" {
		return nil
	}
	invDate, err := parseInvoiceDate(rc.Fields.InvoiceDate)
	if err != nil {
		return nil
	}

	invSKUs := make(map[string]bool)
	for _, li := range rc.Fields.LineItems {
		if li.SKU != "" {
			invSKUs[li.SKU] = true
		}
	}

	window := float64(rc.Cfg.POMatchWindowDays)
	var candidates []model.PurchaseOrder
	for _, po := range rc.Memory.PurchaseOrders {
		poDate, err := time.Parse("2006-01-02", po.Date)
		if err != nil {
			continue
		}
		if daysApart(invDate, poDate) > window {
			continue
		}
		for _, li := range po.LineItems {
			if li.SKU != "" && invSKUs[li.SKU] {
				candidates = append(candidates, po)
				break
			}
		}
	}

	if len(candidates) != 1 {
		return nil
	}
	rc.Fields.PONumber = candidates[0].PONumber

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedPOSuggestion,
			Level:  model.LevelCorrection,
			Vendor: rc.Invoice.Vendor,
			Field:  "po_number",
		},
		Description: fmt.Sprintf(
			"Suggested po_number=%s based on a single matching purchase order within %d days and SKU overlap for %s.",
			candidates[0].PONumber, rc.Cfg.POMatchWindowDays, rc.Invoice.Vendor,
		),
	}
}
