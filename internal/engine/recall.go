package engine

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/flowbit/invoice-engine/internal/model"
)

// recall gathers everything rule application needs for one invoice: the
// vendor's memories plus the purchase-order and same-number invoice lookups,
// so that rule bodies stay free of I/O. A store failure here is fatal for
// the invocation: an empty context is indistinguishable from a vendor with
// no history and would skew the decision stage.
func (e *Engine) recall(ctx context.Context, inv *model.Invoice) (*model.MemoryContext, []model.AuditEntry, error) {
	vendorMemories, err := e.store.GetVendorMemories(ctx, inv.Vendor)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: recall vendor memories for %s", inv.Vendor)
	}
	correctionMemories, err := e.store.GetCorrectionMemories(ctx, inv.Vendor)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: recall correction memories for %s", inv.Vendor)
	}
	purchaseOrders, err := e.store.GetPurchaseOrdersByVendor(ctx, inv.Vendor)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: recall purchase orders for %s", inv.Vendor)
	}
	sameNumber, err := e.store.FindInvoicesByVendorAndNumber(ctx, inv.Vendor, inv.Fields.InvoiceNumber)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: recall invoices numbered %s for %s", inv.Fields.InvoiceNumber, inv.Vendor)
	}

	memory := &model.MemoryContext{
		VendorMemories:     vendorMemories,
		CorrectionMemories: correctionMemories,
		PurchaseOrders:     purchaseOrders,
		SameNumberInvoices: sameNumber,
	}

	audit := []model.AuditEntry{model.NewAuditEntry(model.StepRecall, fmt.Sprintf(
		"Recalled %d vendor memories and %d correction memories for vendor %s",
		len(vendorMemories), len(correctionMemories), inv.Vendor,
	))}
	return memory, audit, nil
}
