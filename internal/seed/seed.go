// Package seed loads the embedded sample data set into a store: invoices,
// purchase orders, delivery notes, vendor memories, and human-correction
// records for the three demo vendors.
package seed

import (
	"context"
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/flowbit/invoice-engine/internal/model"
	"github.com/flowbit/invoice-engine/internal/store"
)

//go:embed sampledata.yaml
var sampleData []byte

// SampleData is the shape of the embedded fixture file.
type SampleData struct {
	Invoices         []model.Invoice         `yaml:"invoices"`
	PurchaseOrders   []model.PurchaseOrder   `yaml:"purchase_orders"`
	DeliveryNotes    []model.DeliveryNote    `yaml:"delivery_notes"`
	VendorMemories   []model.VendorMemory    `yaml:"vendor_memories"`
	HumanCorrections []model.HumanCorrection `yaml:"human_corrections"`
}

// Load parses the embedded sample data.
func Load() (*SampleData, error) {
	var data SampleData
	if err := yaml.Unmarshal(sampleData, &data); err != nil {
		return nil, eris.Wrap(err, "seed: unmarshal sample data")
	}
	return &data, nil
}

// Result reports how many records the fixture holds per kind. All writes are
// insert-if-absent, so seeding is idempotent.
type Result struct {
	Invoices         int
	PurchaseOrders   int
	DeliveryNotes    int
	VendorMemories   int
	HumanCorrections int
}

// Seeder writes sample data into a store.
type Seeder struct {
	store store.Store
}

// NewSeeder creates a Seeder for the given store.
func NewSeeder(s store.Store) *Seeder {
	return &Seeder{store: s}
}

// Seed loads the embedded fixtures and writes them all. Records that already
// exist are left untouched.
func (s *Seeder) Seed(ctx context.Context) (*Result, error) {
	data, err := Load()
	if err != nil {
		return nil, err
	}

	for _, inv := range data.Invoices {
		if err := s.store.SaveInvoice(ctx, inv); err != nil {
			return nil, eris.Wrapf(err, "seed: invoice %s", inv.InvoiceID)
		}
	}
	for _, po := range data.PurchaseOrders {
		if err := s.store.SavePurchaseOrder(ctx, po); err != nil {
			return nil, eris.Wrapf(err, "seed: purchase order %s", po.PONumber)
		}
	}
	for _, dn := range data.DeliveryNotes {
		if err := s.store.SaveDeliveryNote(ctx, dn); err != nil {
			return nil, eris.Wrapf(err, "seed: delivery note %s", dn.DNNumber)
		}
	}
	for _, m := range data.VendorMemories {
		if err := s.store.SaveVendorMemory(ctx, m); err != nil {
			return nil, eris.Wrapf(err, "seed: vendor memory %s/%s", m.Vendor, m.Key)
		}
	}
	for _, hc := range data.HumanCorrections {
		if err := s.store.SaveHumanCorrection(ctx, hc); err != nil {
			return nil, eris.Wrapf(err, "seed: human correction %s", hc.InvoiceID)
		}
	}

	return &Result{
		Invoices:         len(data.Invoices),
		PurchaseOrders:   len(data.PurchaseOrders),
		DeliveryNotes:    len(data.DeliveryNotes),
		VendorMemories:   len(data.VendorMemories),
		HumanCorrections: len(data.HumanCorrections),
	}, nil
}
