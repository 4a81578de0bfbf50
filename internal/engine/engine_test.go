package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbit/invoice-engine/internal/model"
	"github.com/flowbit/invoice-engine/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, testEngineConfig()), st
}

func supplierInvoice() model.Invoice {
	return model.Invoice{
		InvoiceID:  "INV-1001",
		Vendor:     VendorSupplierGmbH,
		Confidence: 0.82,
		RawText:    "Rechnung S-2024-101\nLeistungsdatum: 05.03.2024",
		Fields: model.InvoiceFields{
			InvoiceNumber: "S-2024-101",
			InvoiceDate:   "05.03.2024",
			Currency:      "EUR",
			PONumber:      "PO-6800",
			NetTotal:      450,
			TaxRate:       0.19,
			TaxTotal:      85.5,
			GrossTotal:    535.5,
			LineItems:     []model.LineItem{{SKU: "A-100", Qty: 1, UnitPrice: 450}},
		},
	}
}

func TestProcessInvoice_NotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	out, err := eng.ProcessInvoice(context.Background(), "INV-MISSING")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestProcessInvoice_ServiceDateInference(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))

	out, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "2024-03-05", out.NormalizedFields.ServiceDate)
	require.Len(t, out.AppliedMemories, 1)
	assert.Equal(t, model.AppliedDateInference, out.AppliedMemories[0].Kind)
	require.Len(t, out.ProposedCorrections, 1)
	assert.Contains(t, out.ProposedCorrections[0], "Leistungsdatum")

	// 0.82 base + one rule, no memories yet.
	assert.InDelta(t, 0.87, out.ConfidenceScore, 0.001)
	assert.True(t, out.RequiresHumanReview)

	// The stored invoice keeps its extracted fields.
	stored, err := st.GetInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Empty(t, stored.Fields.ServiceDate)
}

func TestProcessInvoice_AuditTrailPersisted(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))

	out, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.NotNil(t, out)

	stored, err := st.ListAuditEntries(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, len(out.AuditTrail), len(stored))

	assert.Equal(t, model.StepRecall, stored[0].Step)
	assert.Equal(t, model.StepLearn, stored[len(stored)-1].Step)

	// Stages never interleave: recall, apply, decide, learn.
	order := map[model.AuditStep]int{
		model.StepRecall: 0, model.StepApply: 1, model.StepDecide: 2, model.StepLearn: 3,
	}
	last := 0
	for i, e := range stored {
		assert.Equal(t, out.AuditTrail[i].Step, e.Step)
		assert.Equal(t, out.AuditTrail[i].Details, e.Details)
		assert.GreaterOrEqual(t, order[e.Step], last)
		last = order[e.Step]
	}
}

func TestProcessInvoice_LearnsFromApproval(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))
	require.NoError(t, st.SaveHumanCorrection(ctx, model.HumanCorrection{
		InvoiceID:     inv.InvoiceID,
		Vendor:        inv.Vendor,
		FinalDecision: model.DecisionApproved,
		Corrections: []model.FieldCorrection{
			{Field: "service_date", From: "", To: "2024-03-05", Reason: "printed in body"},
		},
	}))

	first, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, first.MemoryUpdates, 1)
	assert.Contains(t, first.MemoryUpdates[0], "Created correction memory")
	assert.Contains(t, first.MemoryUpdates[0], "0.70")

	mem, err := st.GetCorrectionMemory(ctx, inv.Vendor, "service_date")
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.InDelta(t, 0.7, mem.Confidence, 0.001)

	second, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, second.MemoryUpdates, 1)
	assert.Contains(t, second.MemoryUpdates[0], "Updated correction memory")
	assert.Contains(t, second.MemoryUpdates[0], "0.80")

	// The memory created in the first run counts as high confidence now.
	assert.Greater(t, second.ConfidenceScore, first.ConfidenceScore)
}

func TestProcessInvoice_RejectionDecays(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	inv.InvoiceID = "INV-REJ"
	require.NoError(t, st.SaveInvoice(ctx, inv))
	require.NoError(t, st.SaveHumanCorrection(ctx, model.HumanCorrection{
		InvoiceID:     inv.InvoiceID,
		Vendor:        inv.Vendor,
		FinalDecision: model.DecisionRejected,
		Corrections: []model.FieldCorrection{
			{Field: "po_number", From: "", To: "PO-9999", Reason: "wrong suggestion"},
		},
	}))

	first, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, first.MemoryUpdates, 1)
	assert.Contains(t, first.MemoryUpdates[0], "0.30")

	second, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Contains(t, second.MemoryUpdates[0], "0.20")

	mem, err := st.GetCorrectionMemory(ctx, inv.Vendor, "po_number")
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.InDelta(t, 0.2, mem.Confidence, 0.001)
}

func TestProcessInvoice_ReinforcementClampsAtOne(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))
	_, err := st.CreateCorrectionMemory(ctx, model.CorrectionMemory{
		Vendor: inv.Vendor, Field: "service_date", Pattern: "p", SuggestedValue: "v", Confidence: 0.95,
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveHumanCorrection(ctx, model.HumanCorrection{
		InvoiceID:     inv.InvoiceID,
		Vendor:        inv.Vendor,
		FinalDecision: model.DecisionApproved,
		Corrections: []model.FieldCorrection{
			{Field: "service_date", From: "", To: "2024-03-05", Reason: "r"},
		},
	}))

	out, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, out.MemoryUpdates, 1)
	assert.Contains(t, out.MemoryUpdates[0], "1.00")

	mem, err := st.GetCorrectionMemory(ctx, inv.Vendor, "service_date")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mem.Confidence, 0.001)
}

func TestProcessInvoice_DuplicatePairFlagged(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	mk := func(id, date string) model.Invoice {
		return model.Invoice{
			InvoiceID:  id,
			Vendor:     VendorFreightCo,
			Confidence: 0.8,
			Fields:     model.InvoiceFields{InvoiceNumber: "F-900", InvoiceDate: date},
		}
	}
	require.NoError(t, st.SaveInvoice(ctx, mk("INV-4001", "14.04.2024")))
	require.NoError(t, st.SaveInvoice(ctx, mk("INV-4002", "15-04-2024")))

	for _, id := range []string{"INV-4001", "INV-4002"} {
		out, err := eng.ProcessInvoice(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.True(t, out.NormalizedFields.Duplicate, id)
	}
}

func TestProcessInvoice_ThreeDaysApartNotDuplicate(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	mk := func(id, date string) model.Invoice {
		return model.Invoice{
			InvoiceID:  id,
			Vendor:     VendorFreightCo,
			Confidence: 0.8,
			Fields:     model.InvoiceFields{InvoiceNumber: "F-901", InvoiceDate: date},
		}
	}
	require.NoError(t, st.SaveInvoice(ctx, mk("INV-A", "14.04.2024")))
	require.NoError(t, st.SaveInvoice(ctx, mk("INV-B", "17.04.2024")))

	for _, id := range []string{"INV-A", "INV-B"} {
		out, err := eng.ProcessInvoice(ctx, id)
		require.NoError(t, err)
		assert.False(t, out.NormalizedFields.Duplicate, id)
	}
}

func TestProcessInvoice_ConcurrentLearningStaysClamped(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))
	require.NoError(t, st.SaveHumanCorrection(ctx, model.HumanCorrection{
		InvoiceID:     inv.InvoiceID,
		Vendor:        inv.Vendor,
		FinalDecision: model.DecisionApproved,
		Corrections: []model.FieldCorrection{
			{Field: "service_date", From: "", To: "2024-03-05", Reason: "r"},
		},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mem, err := st.GetCorrectionMemory(ctx, inv.Vendor, "service_date")
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.GreaterOrEqual(t, mem.Confidence, 0.0)
	assert.LessOrEqual(t, mem.Confidence, 1.0)
}

// failingRecallStore fails the first recall lookup.
type failingRecallStore struct {
	store.Store
}

func (failingRecallStore) GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error) {
	return nil, eris.New("connection reset")
}

func TestProcessInvoice_RecallFailureIsFatal(t *testing.T) {
	_, st := newTestEngine(t)
	ctx := context.Background()

	inv := supplierInvoice()
	require.NoError(t, st.SaveInvoice(ctx, inv))

	eng := New(failingRecallStore{Store: st}, testEngineConfig())
	out, err := eng.ProcessInvoice(ctx, inv.InvoiceID)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "recall vendor memories")

	// Nothing reaches the audit trail when recall fails.
	entries, err := st.ListAuditEntries(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKeyedMutex(t *testing.T) {
	var km keyedMutex
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("same-key")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}
