package model

// LineItem is a single billed position on an invoice.
type LineItem struct {
	SKU         string  `json:"sku,omitempty" yaml:"sku,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Qty         float64 `json:"qty" yaml:"qty"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
}

// InvoiceFields is the machine-extracted field set of an invoice. The
// pipeline never mutates the fields attached to a stored invoice; it works
// on a Clone and returns that as the normalized field set.
type InvoiceFields struct {
	InvoiceNumber string     `json:"invoice_number" yaml:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date" yaml:"invoice_date"`
	ServiceDate   string     `json:"service_date,omitempty" yaml:"service_date,omitempty"`
	Currency      string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	PONumber      string     `json:"po_number,omitempty" yaml:"po_number,omitempty"`
	NetTotal      float64    `json:"net_total" yaml:"net_total"`
	TaxRate       float64    `json:"tax_rate" yaml:"tax_rate"`
	TaxTotal      float64    `json:"tax_total" yaml:"tax_total"`
	GrossTotal    float64    `json:"gross_total" yaml:"gross_total"`
	LineItems     []LineItem `json:"line_items" yaml:"line_items"`

	// Normalization-only annotations. Never present on extracted input;
	// set by correction rules on the cloned field set.
	DiscountTerms string `json:"discount_terms,omitempty" yaml:"discount_terms,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty" yaml:"duplicate,omitempty"`
}

// Clone returns a deep copy of the field set, including line items.
func (f InvoiceFields) Clone() InvoiceFields {
	out := f
	out.LineItems = make([]LineItem, len(f.LineItems))
	copy(out.LineItems, f.LineItems)
	return out
}

// Invoice is a pre-extracted invoice document as received from upstream
// extraction, with its base extraction confidence and original raw text.
type Invoice struct {
	InvoiceID  string        `json:"invoice_id" yaml:"invoice_id"`
	Vendor     string        `json:"vendor" yaml:"vendor"`
	Fields     InvoiceFields `json:"fields" yaml:"fields"`
	Confidence float64       `json:"confidence" yaml:"confidence"`
	RawText    string        `json:"raw_text" yaml:"raw_text"`
}

// POLineItem is a purchase-order position; only the SKU participates in
// invoice matching.
type POLineItem struct {
	SKU string  `json:"sku,omitempty" yaml:"sku,omitempty"`
	Qty float64 `json:"qty" yaml:"qty"`
}

// PurchaseOrder is a stored purchase order used for PO-number suggestion.
// Date is ISO (YYYY-MM-DD).
type PurchaseOrder struct {
	PONumber  string       `json:"po_number" yaml:"po_number"`
	Vendor    string       `json:"vendor" yaml:"vendor"`
	Date      string       `json:"date" yaml:"date"`
	LineItems []POLineItem `json:"line_items" yaml:"line_items"`
}

// DeliveryNote is a stored delivery note. Seeded alongside invoices and
// purchase orders for future cross-document checks; the correction rules do
// not consult it yet.
type DeliveryNote struct {
	DNNumber string       `json:"dn_number" yaml:"dn_number"`
	Vendor   string       `json:"vendor" yaml:"vendor"`
	Date     string       `json:"date" yaml:"date"`
	Items    []POLineItem `json:"items" yaml:"items"`
}
