package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flowbit/invoice-engine/internal/demo"
	"github.com/flowbit/invoice-engine/internal/engine"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a narrated walkthrough over the sample data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := engine.New(st, cfg.Engine)
		return demo.NewRunner(st, eng, os.Stdout).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
