package engine

import (
	"fmt"

	"github.com/flowbit/invoice-engine/internal/config"
	"github.com/flowbit/invoice-engine/internal/model"
)

// Vendors the shipped rule catalogue knows about.
const (
	VendorSupplierGmbH = "Supplier GmbH"
	VendorPartsAG      = "Parts AG"
	VendorFreightCo    = "Freight & Co"
)

// RuleContext carries one invocation's working state into each rule. Fields
// is the cloned, normalized field set; rules mutate it in place. Memory is
// read-only.
type RuleContext struct {
	Invoice *model.Invoice
	Fields  *model.InvoiceFields
	Memory  *model.MemoryContext
	Cfg     config.EngineConfig
}

// Application reports that a rule fired: the applied-memory record feeding
// the decision boost plus the human-readable proposed-correction text.
type Application struct {
	Memory      model.AppliedMemory
	Description string
}

// Rule is a single vendor-specific correction heuristic. Apply inspects the
// context and returns nil when it does not fire. Every rule guards on the
// target value being absent, so it fires at most once per invocation and
// never re-derives an existing value. Rules perform no I/O.
type Rule interface {
	Name() string
	Apply(rc *RuleContext) *Application
}

// Registry maps vendors to their correction rules. Global rules run for
// every vendor, after the vendor-specific ones, in registration order.
type Registry struct {
	byVendor map[string][]Rule
	global   []Rule
}

// NewRegistry returns an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byVendor: make(map[string][]Rule)}
}

// Register adds a rule for the given vendor; an empty vendor registers a
// global rule that runs for all vendors.
func (r *Registry) Register(vendor string, rule Rule) {
	if vendor == "" {
		r.global = append(r.global, rule)
		return
	}
	r.byVendor[vendor] = append(r.byVendor[vendor], rule)
}

// RulesFor returns the ordered rule chain for a vendor.
func (r *Registry) RulesFor(vendor string) []Rule {
	rules := make([]Rule, 0, len(r.byVendor[vendor])+len(r.global))
	rules = append(rules, r.byVendor[vendor]...)
	rules = append(rules, r.global...)
	return rules
}

// DefaultRegistry returns the shipped rule catalogue.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(VendorSupplierGmbH, serviceDateRule{})
	r.Register(VendorSupplierGmbH, poSuggestionRule{})
	r.Register(VendorPartsAG, taxInclusiveRule{})
	r.Register(VendorPartsAG, currencyRecoveryRule{})
	r.Register(VendorFreightCo, discountTermsRule{})
	r.Register(VendorFreightCo, shippingSKURule{})
	r.Register("", duplicateRule{})
	return r
}

// apply runs the vendor's rule chain against a deep copy of the invoice
// fields and returns the normalized set, the proposed-correction strings,
// the applied-memory records, and one audit entry per fired rule plus a
// trailing summary.
func (e *Engine) apply(inv *model.Invoice, memory *model.MemoryContext) (model.InvoiceFields, []string, []model.AppliedMemory, []model.AuditEntry) {
	normalized := inv.Fields.Clone()
	rc := &RuleContext{
		Invoice: inv,
		Fields:  &normalized,
		Memory:  memory,
		Cfg:     e.cfg,
	}

	var (
		proposed []string
		applied  []model.AppliedMemory
		audit    []model.AuditEntry
	)
	for _, rule := range e.rules.RulesFor(inv.Vendor) {
		app := rule.Apply(rc)
		if app == nil {
			continue
		}
		proposed = append(proposed, app.Description)
		applied = append(applied, app.Memory)
		audit = append(audit, model.NewAuditEntry(model.StepApply, app.Description))
	}

	audit = append(audit, model.NewAuditEntry(model.StepApply, fmt.Sprintf(
		"Applied %d correction rule(s) to invoice %s.", len(applied), inv.InvoiceID,
	)))
	return normalized, proposed, applied, audit
}
