package engine

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/flowbit/invoice-engine/internal/model"
)

// Parts AG prints tax-inclusive totals and sometimes drops the structured
// currency field while still naming the currency in the body text.

// vatInclusivePhrases are the body-text markers meaning the gross total
// already includes VAT. Matched case-insensitively.
var vatInclusivePhrases = []string{
	"prices incl. vat",
	"mwst. inkl",
	"vat already included",
}

var currencyPattern = regexp.MustCompile(`Currency:\s*([A-Z]{3})`)

// taxInclusiveRule recomputes net and tax totals from the gross total and
// tax rate when the raw text declares prices as VAT-inclusive. It only
// counts as fired when the recomputed values actually differ.
type taxInclusiveRule struct{}

func (taxInclusiveRule) Name() string { return "tax_inclusive_recompute" }

func (taxInclusiveRule) Apply(rc *RuleContext) *Application {
	text := strings.ToLower(rc.Invoice.RawText)
	inclusive := false
	for _, phrase := range vatInclusivePhrases {
		if strings.Contains(text, phrase) {
			inclusive = true
			break
		}
	}
	if !inclusive {
		return nil
	}

	gross, rate := rc.Fields.GrossTotal, rc.Fields.TaxRate
	if gross == 0 || rate == 0 {
		return nil
	}

	net := round2(gross / (1 + rate))
	tax := round2(gross - net)
	if net == rc.Fields.NetTotal && tax == rc.Fields.TaxTotal {
		return nil
	}
	rc.Fields.NetTotal = net
	rc.Fields.TaxTotal = tax

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedTaxRecompute,
			Level:  model.LevelCorrection,
			Vendor: rc.Invoice.Vendor,
			Field:  "net_total",
		},
		Description: "Recomputed net_total and tax_total from gross_total and tax_rate because raw text indicates prices include VAT.",
	}
}

// currencyRecoveryRule recovers a missing currency code from a labeled
// three-letter token in the raw text.
type currencyRecoveryRule struct{}

func (currencyRecoveryRule) Name() string { return "currency_recovery" }

func (currencyRecoveryRule) Apply(rc *RuleContext) *Application {
	if rc.Fields.Currency != "" {
		return nil
	}
	m := currencyPattern.FindStringSubmatch(rc.Invoice.RawText)
	if m == nil {
		return nil
	}
	rc.Fields.Currency = m[1]

	return &Application{
		Memory: model.AppliedMemory{
			Kind:   model.AppliedCurrencyRecovery,
			Level:  model.LevelCorrection,
			Vendor: rc.Invoice.Vendor,
			Field:  "currency",
		},
		Description: fmt.Sprintf("Recovered missing currency as %s from raw text for %s.", m[1], rc.Invoice.Vendor),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
