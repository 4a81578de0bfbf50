package store

import (
	"context"

	"github.com/flowbit/invoice-engine/internal/model"
)

// Store defines the persistence interface for the correction engine.
// Lookups that can legitimately find nothing return (nil, nil); errors are
// reserved for store failures. Save* methods are insert-if-absent and exist
// for seeding and ingest, not for the pipeline itself.
type Store interface {
	// Invoices
	GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	SaveInvoice(ctx context.Context, inv model.Invoice) error
	ListInvoices(ctx context.Context) ([]model.Invoice, error)
	FindInvoicesByVendorAndNumber(ctx context.Context, vendor, invoiceNumber string) ([]model.Invoice, error)

	// Purchase orders and delivery notes
	SavePurchaseOrder(ctx context.Context, po model.PurchaseOrder) error
	GetPurchaseOrdersByVendor(ctx context.Context, vendor string) ([]model.PurchaseOrder, error)
	SaveDeliveryNote(ctx context.Context, dn model.DeliveryNote) error

	// Vendor memories (read-only to the pipeline)
	SaveVendorMemory(ctx context.Context, m model.VendorMemory) error
	GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error)

	// Correction memories. The store holds at most one row per
	// (vendor, field). AdjustCorrectionMemoryConfidence applies the delta
	// and clamps to [0,1] in a single statement, returning the new value.
	GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error)
	GetCorrectionMemory(ctx context.Context, vendor, field string) (*model.CorrectionMemory, error)
	CreateCorrectionMemory(ctx context.Context, m model.CorrectionMemory) (string, error)
	AdjustCorrectionMemoryConfidence(ctx context.Context, id string, delta float64) (float64, error)

	// Human review records
	SaveHumanCorrection(ctx context.Context, hc model.HumanCorrection) error
	GetHumanCorrection(ctx context.Context, invoiceID string) (*model.HumanCorrection, error)

	// Audit sink
	AppendAuditEntries(ctx context.Context, invoiceID string, entries []model.AuditEntry) error
	ListAuditEntries(ctx context.Context, invoiceID string) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
