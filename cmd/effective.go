package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunfield-ops/solarledger/internal/identity"
	"github.com/sunfield-ops/solarledger/internal/validate"
)

var (
	effectiveSupplier string
	effectiveProduct  string
	effectiveAt       string
)

var effectiveCmd = &cobra.Command{
	Use:   "effective",
	Short: "Show the version effective at a point in time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		at := time.Now().UTC()
		if effectiveAt != "" {
			t, err := validate.ParseDate(effectiveAt)
			if err != nil {
				return eris.Wrapf(err, "parse --at %q", effectiveAt)
			}
			at = t
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		key := identity.Key(effectiveSupplier, effectiveProduct)
		v, err := st.EffectiveAt(ctx, key, at)
		if err != nil {
			return err
		}
		if v == nil {
			return eris.Errorf("no version effective at %s for %s", at.Format(time.RFC3339), key)
		}
		if v.Conflict {
			zap.L().Warn("effective version has an unresolved conflict",
				zap.String("identity", key),
				zap.Int("version", v.Number),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

func init() {
	effectiveCmd.Flags().StringVar(&effectiveSupplier, "supplier", "", "supplier name")
	effectiveCmd.Flags().StringVar(&effectiveProduct, "product", "", "product code")
	effectiveCmd.Flags().StringVar(&effectiveAt, "at", "", "timestamp to query (RFC 3339 or YYYY-MM-DD, default now)")
	effectiveCmd.MarkFlagRequired("supplier") //nolint:errcheck
	effectiveCmd.MarkFlagRequired("product")  //nolint:errcheck
	rootCmd.AddCommand(effectiveCmd)
}
