package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/flowbit/invoice-engine/internal/engine"
)

var processCmd = &cobra.Command{
	Use:   "process <invoice-id>",
	Short: "Run the correction pipeline for a single invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := engine.New(st, cfg.Engine)

		out, err := eng.ProcessInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		if out == nil {
			return eris.Errorf("invoice not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "encode output")
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
