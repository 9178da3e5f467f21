package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunfield-ops/solarledger/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		trail, err := export.Build(ctx, st)
		if err != nil {
			return err
		}

		switch exportFormat {
		case "json":
			err = trail.WriteJSON(exportOut)
		case "xlsx":
			err = trail.WriteXLSX(exportOut)
		default:
			return eris.Errorf("unknown export format %q (want json or xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("audit trail exported",
			zap.String("path", exportOut),
			zap.Int("components", len(trail.Components)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json or xlsx)")
	exportCmd.Flags().StringVar(&exportOut, "out", "audit-trail.json", "output file path")
	rootCmd.AddCommand(exportCmd)
}
