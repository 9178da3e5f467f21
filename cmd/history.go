package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunfield-ops/solarledger/internal/identity"
)

var (
	historySupplier string
	historyProduct  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the full version history for a component",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		key := identity.Key(historySupplier, historyProduct)
		history, err := st.History(ctx, key)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySupplier, "supplier", "", "supplier name")
	historyCmd.Flags().StringVar(&historyProduct, "product", "", "product code")
	historyCmd.MarkFlagRequired("supplier") //nolint:errcheck
	historyCmd.MarkFlagRequired("product")  //nolint:errcheck
	rootCmd.AddCommand(historyCmd)
}
