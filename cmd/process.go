package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	processInputDir  string
	processReportOut string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process maintenance PDFs into the version ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := buildPipeline(st)
		if err != nil {
			return err
		}

		batch, err := p.ProcessDir(ctx, processInputDir)
		if err != nil {
			return err
		}

		if processReportOut != "" {
			if err := batch.WriteJSON(processReportOut); err != nil {
				return err
			}
		}

		// Nonzero exit when documents failed, so schedulers notice.
		if n := batch.Failed(); n > 0 {
			return eris.Errorf("%d of %d documents failed", n, len(batch.Outcomes))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processInputDir, "input-dir", "", "directory containing PDF files to process")
	processCmd.Flags().StringVar(&processReportOut, "report", "-", "batch report output path (- for stdout)")
	processCmd.MarkFlagRequired("input-dir") //nolint:errcheck
	rootCmd.AddCommand(processCmd)
}
