package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/flowbit/invoice-engine/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit <invoice-id>",
	Short: "Print the stored audit trail for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListAuditEntries(ctx, args[0])
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []model.AuditEntry{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(entries), "encode audit trail")
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
