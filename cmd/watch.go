package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchInputDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and process PDFs as they arrive",
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

		return p.Watch(ctx, watchInputDir)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchInputDir, "input-dir", "", "directory to watch for PDF files")
	watchCmd.MarkFlagRequired("input-dir") //nolint:errcheck
	rootCmd.AddCommand(watchCmd)
}
