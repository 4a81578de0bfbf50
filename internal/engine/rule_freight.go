package engine

import (
	"fmt"
	"strings"

	"github.com/flowbit/invoice-engine/internal/model"
)

// Freight & Co invoices mention cash-discount (Skonto) terms in free text
// and bill shipping as an unnumbered first line item.

// skontoTerms is the annotation recorded whenever Skonto wording appears.
const skontoTerms = "2% Skonto within 10 days"

// freightSKU is the sentinel SKU assigned to shipping line items.
const freightSKU = "FREIGHT"

var shippingKeywords = []string{"seefracht", "shipping"}

// discountTermsRule annotates the invoice with the vendor's standing
// cash-discount terms when the raw text mentions Skonto.
type discountTermsRule struct{}

func (discountTermsRule) Name() string { return "discount_terms" }

func (discountTermsRule) Apply(rc *RuleContext) *Application {
	if rc.Fields.DiscountTerms != "" {
		return nil
	}
	if !strings.Contains(strings.ToLower(rc.Invoice.RawText), "skonto") {
		return nil
	}
	rc.Fields.DiscountTerms = skontoTerms

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedDiscountTerms,
			Level:  model.LevelVendor,
			Vendor: rc.Invoice.Vendor,
			Key:    "skonto_terms",
		},
		Description: fmt.Sprintf("Recorded discount_terms from Skonto text in raw text for %s.", rc.Invoice.Vendor),
	}
}

// shippingSKURule maps an unnumbered first line item with a shipping-related
// description to the freight sentinel SKU.
type shippingSKURule struct{}

func (shippingSKURule) Name() string { return "shipping_sku_mapping" }

func (shippingSKURule) Apply(rc *RuleContext) *Application {
	if len(rc.Fields.LineItems) == 0 {
		return nil
	}
	line := &rc.Fields.LineItems[0]
	if line.SKU != "" {
		return nil
	}
	desc := strings.ToLower(line.Description)
	matched := false
	for _, kw := range shippingKeywords {
		if strings.Contains(desc, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	line.SKU = freightSKU

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedSKUMapping,
			Level:  model.LevelCorrection,
			Vendor: rc.Invoice.Vendor,
			Field:  "line_items[0].sku",
		},
		Description: fmt.Sprintf("Mapped description %q to SKU %s for %s.", line.Description, freightSKU, rc.Invoice.Vendor),
	}
}
