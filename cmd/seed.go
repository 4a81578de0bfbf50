package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flowbit/invoice-engine/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the embedded sample data into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := seed.NewSeeder(st).Seed(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("sample data seeded",
			zap.Int("invoices", res.Invoices),
			zap.Int("purchase_orders", res.PurchaseOrders),
			zap.Int("delivery_notes", res.DeliveryNotes),
			zap.Int("vendor_memories", res.VendorMemories),
			zap.Int("human_corrections", res.HumanCorrections),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
