package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbit/invoice-engine/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestLoad(t *testing.T) {
	data, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, data.Invoices)
	assert.NotEmpty(t, data.PurchaseOrders)
	assert.NotEmpty(t, data.VendorMemories)
	assert.NotEmpty(t, data.HumanCorrections)

	for _, inv := range data.Invoices {
		assert.NotEmpty(t, inv.InvoiceID)
		assert.NotEmpty(t, inv.Vendor)
		assert.NotEmpty(t, inv.Fields.InvoiceNumber)
		assert.Greater(t, inv.Confidence, 0.0)
	}
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := NewSeeder(s).Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Invoices)
	assert.Equal(t, 3, res.PurchaseOrders)
	assert.Equal(t, 3, res.HumanCorrections)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, res.Invoices)

	pos, err := s.GetPurchaseOrdersByVendor(ctx, "Supplier GmbH")
	require.NoError(t, err)
	assert.Len(t, pos, 2)

	hc, err := s.GetHumanCorrection(ctx, "INV-1001")
	require.NoError(t, err)
	require.NotNil(t, hc)
	assert.True(t, hc.Approved())
}

func TestSeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := NewSeeder(s).Seed(ctx)
	require.NoError(t, err)

	second, err := NewSeeder(s).Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, first.Invoices)

	memories, err := s.GetVendorMemories(ctx, "Parts AG")
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}
