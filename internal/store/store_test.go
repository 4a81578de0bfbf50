package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbit/invoice-engine/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testInvoice(id, vendor, number string) model.Invoice {
	return model.Invoice{
		InvoiceID:  id,
		Vendor:     vendor,
		Confidence: 0.8,
		RawText:    "raw text for " + id,
		Fields: model.InvoiceFields{
			InvoiceNumber: number,
			InvoiceDate:   "05.03.2024",
			Currency:      "EUR",
			NetTotal:      100,
			TaxRate:       0.19,
			TaxTotal:      19,
			GrossTotal:    119,
			LineItems: []model.LineItem{
				{SKU: "A-100", Description: "Widget", Qty: 2, UnitPrice: 50},
			},
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetInvoice", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		inv := testInvoice("INV-1", "Supplier GmbH", "S-100")
		require.NoError(t, s.SaveInvoice(ctx, inv))

		got, err := s.GetInvoice(ctx, "INV-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Supplier GmbH", got.Vendor)
		assert.Equal(t, "S-100", got.Fields.InvoiceNumber)
		assert.InDelta(t, 0.8, got.Confidence, 0.001)
		require.Len(t, got.Fields.LineItems, 1)
		assert.Equal(t, "A-100", got.Fields.LineItems[0].SKU)
	})

	t.Run("GetInvoiceNotFound", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetInvoice(context.Background(), "INV-MISSING")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SaveInvoiceFirstWriteWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		inv := testInvoice("INV-1", "Supplier GmbH", "S-100")
		require.NoError(t, s.SaveInvoice(ctx, inv))

		changed := inv
		changed.Vendor = "Parts AG"
		require.NoError(t, s.SaveInvoice(ctx, changed))

		got, err := s.GetInvoice(ctx, "INV-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Supplier GmbH", got.Vendor)
	})

	t.Run("ListInvoices", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			require.NoError(t, s.SaveInvoice(ctx, testInvoice(fmt.Sprintf("INV-%d", i), "Parts AG", fmt.Sprintf("PA-%d", i))))
		}

		got, err := s.ListInvoices(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("FindInvoicesByVendorAndNumber", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveInvoice(ctx, testInvoice("INV-1", "Freight & Co", "F-900")))
		require.NoError(t, s.SaveInvoice(ctx, testInvoice("INV-2", "Freight & Co", "F-900")))
		require.NoError(t, s.SaveInvoice(ctx, testInvoice("INV-3", "Freight & Co", "F-901")))
		require.NoError(t, s.SaveInvoice(ctx, testInvoice("INV-4", "Parts AG", "F-900")))

		got, err := s.FindInvoicesByVendorAndNumber(ctx, "Freight & Co", "F-900")
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, inv := range got {
			assert.Equal(t, "Freight & Co", inv.Vendor)
			assert.Equal(t, "F-900", inv.Fields.InvoiceNumber)
		}
	})

	t.Run("PurchaseOrders", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		po := model.PurchaseOrder{
			PONumber: "PO-7001",
			Vendor:   "Supplier GmbH",
			Date:     "2024-03-20",
			LineItems: []model.POLineItem{
				{SKU: "B-220", Qty: 2},
			},
		}
		require.NoError(t, s.SavePurchaseOrder(ctx, po))
		require.NoError(t, s.SavePurchaseOrder(ctx, po)) // idempotent

		got, err := s.GetPurchaseOrdersByVendor(ctx, "Supplier GmbH")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "PO-7001", got[0].PONumber)
		require.Len(t, got[0].LineItems, 1)
		assert.Equal(t, "B-220", got[0].LineItems[0].SKU)

		other, err := s.GetPurchaseOrdersByVendor(ctx, "Parts AG")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("SaveDeliveryNote", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		dn := model.DeliveryNote{
			DNNumber: "DN-5001",
			Vendor:   "Supplier GmbH",
			Date:     "2024-03-21",
			Items:    []model.POLineItem{{SKU: "B-220", Qty: 2}},
		}
		require.NoError(t, s.SaveDeliveryNote(ctx, dn))
		require.NoError(t, s.SaveDeliveryNote(ctx, dn))
	})

	t.Run("VendorMemories", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := model.VendorMemory{
			Vendor: "Supplier GmbH",
			Key:    "date_label",
			Data:   map[string]string{"label": "Leistungsdatum"},
		}
		require.NoError(t, s.SaveVendorMemory(ctx, m))

		// Same vendor+key keeps the first record.
		m.Data = map[string]string{"label": "changed"}
		require.NoError(t, s.SaveVendorMemory(ctx, m))

		got, err := s.GetVendorMemories(ctx, "Supplier GmbH")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.NotEmpty(t, got[0].ID)
		assert.Equal(t, "date_label", got[0].Key)
		assert.Equal(t, "Leistungsdatum", got[0].Data["label"])
	})

	t.Run("CorrectionMemoryLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		absent, err := s.GetCorrectionMemory(ctx, "Supplier GmbH", "service_date")
		require.NoError(t, err)
		assert.Nil(t, absent)

		id, err := s.CreateCorrectionMemory(ctx, model.CorrectionMemory{
			Vendor:         "Supplier GmbH",
			Field:          "service_date",
			Pattern:        "Leistungsdatum",
			SuggestedValue: "2024-03-05",
			Confidence:     0.7,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := s.GetCorrectionMemory(ctx, "Supplier GmbH", "service_date")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)
		assert.InDelta(t, 0.7, got.Confidence, 0.001)
		assert.False(t, got.CreatedAt.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())

		all, err := s.GetCorrectionMemories(ctx, "Supplier GmbH")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("CorrectionMemoryUniquePerVendorField", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateCorrectionMemory(ctx, model.CorrectionMemory{
			Vendor: "Parts AG", Field: "net_total", Pattern: "p", SuggestedValue: "100", Confidence: 0.7,
		})
		require.NoError(t, err)

		_, err = s.CreateCorrectionMemory(ctx, model.CorrectionMemory{
			Vendor: "Parts AG", Field: "net_total", Pattern: "q", SuggestedValue: "101", Confidence: 0.3,
		})
		require.Error(t, err)

		all, err := s.GetCorrectionMemories(ctx, "Parts AG")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("AdjustConfidenceClamps", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.CreateCorrectionMemory(ctx, model.CorrectionMemory{
			Vendor: "Parts AG", Field: "currency", Pattern: "p", SuggestedValue: "EUR", Confidence: 0.7,
		})
		require.NoError(t, err)

		c, err := s.AdjustCorrectionMemoryConfidence(ctx, id, 0.1)
		require.NoError(t, err)
		assert.InDelta(t, 0.8, c, 0.001)

		c, err = s.AdjustCorrectionMemoryConfidence(ctx, id, 0.5)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, c, 0.001)

		for i := 0; i < 12; i++ {
			c, err = s.AdjustCorrectionMemoryConfidence(ctx, id, -0.1)
			require.NoError(t, err)
		}
		assert.InDelta(t, 0.0, c, 0.001)

		got, err := s.GetCorrectionMemory(ctx, "Parts AG", "currency")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.InDelta(t, 0.0, got.Confidence, 0.001)
	})

	t.Run("AdjustConfidenceUnknownID", func(t *testing.T) {
		s := newStore(t)

		_, err := s.AdjustCorrectionMemoryConfidence(context.Background(), "no-such-id", 0.1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("HumanCorrections", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		absent, err := s.GetHumanCorrection(ctx, "INV-1")
		require.NoError(t, err)
		assert.Nil(t, absent)

		hc := model.HumanCorrection{
			InvoiceID:     "INV-1",
			Vendor:        "Supplier GmbH",
			FinalDecision: model.DecisionApproved,
			Corrections: []model.FieldCorrection{
				{Field: "service_date", From: "", To: "2024-03-05", Reason: "printed in body"},
			},
		}
		require.NoError(t, s.SaveHumanCorrection(ctx, hc))

		got, err := s.GetHumanCorrection(ctx, "INV-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Approved())
		require.Len(t, got.Corrections, 1)
		assert.Equal(t, "service_date", got.Corrections[0].Field)
	})

	t.Run("AuditTrailPreservesOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := []model.AuditEntry{
			model.NewAuditEntry(model.StepRecall, "recalled"),
			model.NewAuditEntry(model.StepApply, "applied"),
			model.NewAuditEntry(model.StepDecide, "decided"),
			model.NewAuditEntry(model.StepLearn, "learned"),
		}
		require.NoError(t, s.AppendAuditEntries(ctx, "INV-1", first))

		second := []model.AuditEntry{
			model.NewAuditEntry(model.StepRecall, "recalled again"),
			model.NewAuditEntry(model.StepLearn, "learned again"),
		}
		require.NoError(t, s.AppendAuditEntries(ctx, "INV-1", second))

		got, err := s.ListAuditEntries(ctx, "INV-1")
		require.NoError(t, err)
		require.Len(t, got, 6)

		wantSteps := []model.AuditStep{
			model.StepRecall, model.StepApply, model.StepDecide, model.StepLearn,
			model.StepRecall, model.StepLearn,
		}
		for i, e := range got {
			assert.Equal(t, wantSteps[i], e.Step)
		}
		assert.Equal(t, "recalled", got[0].Details)
		assert.Equal(t, "learned again", got[5].Details)
	})

	t.Run("AuditTrailScopedToInvoice", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.AppendAuditEntries(ctx, "INV-1", []model.AuditEntry{
			model.NewAuditEntry(model.StepRecall, "one"),
		}))
		require.NoError(t, s.AppendAuditEntries(ctx, "INV-2", []model.AuditEntry{
			model.NewAuditEntry(model.StepRecall, "two"),
		}))

		got, err := s.ListAuditEntries(ctx, "INV-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "one", got[0].Details)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
